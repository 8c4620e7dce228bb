package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// playerIDSuffix matches the "_<number>_<LEAGUE>" tail of provider player IDs.
var playerIDSuffix = regexp.MustCompile(`(?i)_\d+_[a-z]+$`)

// ExtractPlayerName turns a provider player ID like "JOSH_ALLEN_1_NFL" into "Josh Allen".
// Irregular casing such as "McCaffrey" is not restored.
func ExtractPlayerName(playerID string) string {
	s := strings.TrimSpace(playerID)
	if s == "" {
		return ""
	}
	s = playerIDSuffix.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " ")
	return titleCase(s)
}

func titleCase(s string) string {
	out := make([]rune, 0, len(s))
	upperNext := true
	for _, r := range strings.ToLower(s) {
		if upperNext {
			out = append(out, unicode.ToUpper(r))
		} else {
			out = append(out, r)
		}
		upperNext = r == ' ' || r == '-' || r == '\''
	}
	return string(out)
}

// NameOptions tunes NormalizeHumanName.
type NameOptions struct {
	StripSuffixes bool
}

var nameSuffixes = map[string]bool{"jr": true, "sr": true, "ii": true, "iii": true, "iv": true, "v": true}

// NormalizeHumanName folds a person's name for fuzzy matching: "J.J. Watt" and "JJ Watt" both give
// "jj watt", "Nikola Jokić" gives "nikola jokic".
func NormalizeHumanName(name string, opts NameOptions) string {
	folded := foldDiacritics(name)
	folded = strings.ToLower(folded)

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r == '\'' || r == '’':
			// apostrophes join: "o'neal" -> "oneal"
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	tokens := collapseInitials(strings.Fields(b.String()))
	if opts.StripSuffixes && len(tokens) > 1 && nameSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// collapseInitials merges runs of single-letter tokens: ["j", "j", "watt"] -> ["jj", "watt"].
func collapseInitials(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	var run strings.Builder
	for _, tok := range tokens {
		if len([]rune(tok)) == 1 && unicode.IsLetter([]rune(tok)[0]) {
			run.WriteString(tok)
			continue
		}
		if run.Len() > 0 {
			out = append(out, run.String())
			run.Reset()
		}
		out = append(out, tok)
	}
	if run.Len() > 0 {
		out = append(out, run.String())
	}
	return out
}
