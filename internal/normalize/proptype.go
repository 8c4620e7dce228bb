package normalize

import (
	"strings"
	"unicode"
)

// Unknown is returned only when the input has no alphanumeric content at all.
const Unknown = "unknown"

// tokenSynonyms folds abbreviations and spelling variants onto one word.
var tokenSynonyms = map[string]string{
	"pass": "passing", "passes": "passing", "py": "passing",
	"rush": "rushing", "rushes": "rushing",
	"rec": "receiving", "recv": "receiving",
	"recs": "receptions", "reception": "receptions", "catches": "receptions", "catch": "receptions",
	"yds": "yards", "yd": "yards", "yard": "yards", "yardage": "yards",
	"td": "touchdowns", "tds": "touchdowns", "touchdown": "touchdowns",
	"comp": "completions", "comps": "completions", "cmp": "completions", "completion": "completions",
	"att": "attempts", "atts": "attempts", "attempt": "attempts",
	"int": "interceptions", "ints": "interceptions", "interception": "interceptions",
	"k": "strikeouts", "ks": "strikeouts", "so": "strikeouts", "strikeout": "strikeouts",
	"hr": "home_runs", "hrs": "home_runs", "homerun": "home_runs", "homeruns": "home_runs",
	"rbi": "rbis", "tb": "total_bases", "totalbases": "total_bases",
	"sb": "stolen_bases", "bb": "walks", "walk": "walks",
	"hit": "hits", "run": "runs", "single": "singles", "double": "doubles", "triple": "triples",
	"er": "earned_runs", "earnedruns": "earned_runs", "out": "outs",
	"pts": "points", "point": "points",
	"reb": "rebounds", "rebs": "rebounds", "rebound": "rebounds",
	"ast": "assists", "asts": "assists", "assist": "assists",
	"stl": "steals", "steal": "steals",
	"blk": "blocks", "blks": "blocks", "block": "blocks",
	"tov": "turnovers", "turnover": "turnovers",
	"3pm": "threes", "3pt": "threes", "3pts": "threes", "threepointersmade": "threes", "three": "threes",
	"fg": "field_goals", "fgm": "field_goals",
	"sog": "shots_on_goal", "shot": "shots",
	"save": "saves", "goal": "goals",
	"pim": "penalty_minutes", "pims": "penalty_minutes",
	"ppp": "power_play_points",
	"pra": "pra",
}

// phraseSynonyms collapse multi-word statistics into one token. Longer phrases first.
var phraseSynonyms = []struct{ from, to string }{
	{"three pointers made", "threes"},
	{"three pointers", "threes"},
	{"three point", "threes"},
	{"threes made", "threes"},
	{"power play points", "power_play_points"},
	{"shots on goal", "shots_on_goal"},
	{"blocked shots", "blocked_shots"},
	{"penalty minutes", "penalty_minutes"},
	{"home runs", "home_runs"},
	{"home run", "home_runs"},
	{"total bases", "total_bases"},
	{"stolen bases", "stolen_bases"},
	{"earned runs", "earned_runs"},
	{"hits allowed", "hits_allowed"},
	{"field goals", "field_goals"},
	{"extra points", "extra_points"},
	{"double double", "double_double"},
	{"triple double", "triple_double"},
	{"pitching outs", "outs_recorded"},
	{"outs recorded", "outs_recorded"},
	{"bases on balls", "walks"},
	{"walks allowed", "walks_allowed"},
}

type propRule struct {
	key   string
	match func(t terms) bool
}

// comboRules run before everything else so a combo never lands on its first component.
var comboRules = []propRule{
	{"rush_rec_yards", func(t terms) bool { return t.has("rushing", "receiving", "yards") }},
	{"pass_rush_yards", func(t terms) bool { return t.has("passing", "rushing", "yards") }},
	{"pass_rec_yards", func(t terms) bool { return t.has("passing", "receiving", "yards") }},
	{"rush_rec_tds", func(t terms) bool { return t.has("rushing", "receiving", "touchdowns") }},
	{"pts_reb_ast", func(t terms) bool { return t.has("pra") || t.has("points", "rebounds", "assists") }},
	{"pts_reb", func(t terms) bool { return t.has("points", "rebounds") }},
	{"pts_ast", func(t terms) bool { return t.has("points", "assists") }},
	{"reb_ast", func(t terms) bool { return t.has("rebounds", "assists") }},
	{"stl_blk", func(t terms) bool { return t.has("steals", "blocks") }},
	{"hits_runs_rbis", func(t terms) bool { return t.has("hits", "runs", "rbis") }},
	{"goals_assists", func(t terms) bool { return t.has("goals", "assists") }},
}

// touchdownRules run before yardage because "rushing touchdowns" also says "rushing".
var touchdownRules = []propRule{
	{"first_td", func(t terms) bool { return t.has("first", "touchdowns") }},
	{"last_td", func(t terms) bool { return t.has("last", "touchdowns") }},
	{"anytime_td", func(t terms) bool { return t.has("anytime", "touchdowns") }},
	{"passing_tds", func(t terms) bool { return t.has("passing", "touchdowns") }},
	{"rushing_tds", func(t terms) bool { return t.has("rushing", "touchdowns") }},
	{"receiving_tds", func(t terms) bool { return t.has("receiving", "touchdowns") }},
	{"anytime_td", func(t terms) bool { return t.has("touchdowns") }},
}

var singleRules = []propRule{
	// football
	{"longest_completion", func(t terms) bool { return t.has("longest") && t.any("completions", "passing") }},
	{"longest_reception", func(t terms) bool { return t.has("longest") && t.any("receptions", "receiving") }},
	{"longest_rush", func(t terms) bool { return t.has("longest", "rushing") }},
	{"passing_yards", func(t terms) bool { return t.has("passing", "yards") }},
	{"rushing_yards", func(t terms) bool { return t.has("rushing", "yards") }},
	{"receiving_yards", func(t terms) bool { return t.has("receiving", "yards") }},
	{"pass_attempts", func(t terms) bool { return t.has("passing", "attempts") }},
	{"rush_attempts", func(t terms) bool { return t.has("rushing", "attempts") }},
	{"completions", func(t terms) bool { return t.has("completions") }},
	{"interceptions", func(t terms) bool { return t.has("interceptions") }},
	{"receptions", func(t terms) bool { return t.has("receptions") || t.only("receiving") }},
	{"field_goals_made", func(t terms) bool { return t.has("field_goals") }},
	{"kicking_points", func(t terms) bool { return t.has("kicking", "points") || t.has("extra_points") }},
	{"sacks", func(t terms) bool { return t.has("sacks") }},
	{"tackles", func(t terms) bool { return t.has("tackles") }},
	// hockey before basketball so "power play points" and "blocked shots" win
	{"power_play_points", func(t terms) bool { return t.has("power_play_points") }},
	{"blocked_shots", func(t terms) bool { return t.has("blocked_shots") }},
	{"shots_on_goal", func(t terms) bool { return t.has("shots_on_goal") || t.has("shots") }},
	{"saves", func(t terms) bool { return t.has("saves") }},
	{"penalty_minutes", func(t terms) bool { return t.has("penalty_minutes") }},
	{"goals", func(t terms) bool { return t.has("goals") }},
	// basketball
	{"double_double", func(t terms) bool { return t.has("double_double") }},
	{"triple_double", func(t terms) bool { return t.has("triple_double") }},
	{"threes_made", func(t terms) bool { return t.has("threes") }},
	{"fantasy_score", func(t terms) bool { return t.has("fantasy") }},
	{"points", func(t terms) bool { return t.has("points") }},
	{"rebounds", func(t terms) bool { return t.has("rebounds") }},
	{"assists", func(t terms) bool { return t.has("assists") }},
	{"steals", func(t terms) bool { return t.has("steals") }},
	{"blocks", func(t terms) bool { return t.has("blocks") }},
	{"turnovers", func(t terms) bool { return t.has("turnovers") }},
	// baseball
	{"hits_allowed", func(t terms) bool { return t.has("hits_allowed") || t.has("pitching", "hits") }},
	{"earned_runs", func(t terms) bool { return t.has("earned_runs") }},
	{"outs_recorded", func(t terms) bool { return t.has("outs_recorded") || t.has("outs") }},
	{"walks_allowed", func(t terms) bool { return t.has("walks_allowed") || t.has("pitching", "walks") }},
	{"strikeouts", func(t terms) bool { return t.has("strikeouts") }},
	{"total_bases", func(t terms) bool { return t.has("total_bases") }},
	{"home_runs", func(t terms) bool { return t.has("home_runs") }},
	{"rbis", func(t terms) bool { return t.has("rbis") }},
	{"stolen_bases", func(t terms) bool { return t.has("stolen_bases") }},
	{"walks", func(t terms) bool { return t.has("walks") }},
	{"singles", func(t terms) bool { return t.has("singles") }},
	{"doubles", func(t terms) bool { return t.has("doubles") }},
	{"triples", func(t terms) bool { return t.has("triples") }},
	{"hits", func(t terms) bool { return t.has("hits") }},
	{"runs", func(t terms) bool { return t.has("runs") }},
}

var ruleGroups = [][]propRule{comboRules, touchdownRules, singleRules}

// NormalizePropType maps a free-text or provider statistic label onto a canonical prop key.
// Unrecognized labels come back as a slug of the input.
func NormalizePropType(raw string) string {
	key, _ := LookupPropType(raw)
	return key
}

// LookupPropType is NormalizePropType plus whether a rule matched.
// matched is false when the result is the fallback slug.
func LookupPropType(raw string) (key string, matched bool) {
	stripped := stripAffixes(strings.ToLower(strings.TrimSpace(raw)))
	t := newTerms(raw)

	for _, group := range ruleGroups {
		for _, rule := range group {
			if rule.match(t) {
				return rule.key, true
			}
		}
	}

	return Slug(stripped), false
}

// Slug lowercases s, replaces runs of non-alphanumerics with one underscore and trims them.
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return Unknown
	}
	return b.String()
}

var (
	stripPrefixes = []string{"player ", "player_", "total "}
	stripSuffixes = []string{" over/under", " over under", " o/u", " ou"}
)

func stripAffixes(s string) string {
	for changed := true; changed; {
		changed = false
		for _, p := range stripPrefixes {
			if strings.HasPrefix(s, p) && !strings.HasPrefix(s, "total bases") {
				s = strings.TrimSpace(strings.TrimPrefix(s, p))
				changed = true
			}
		}
		for _, suf := range stripSuffixes {
			if strings.HasSuffix(s, suf) {
				s = strings.TrimSpace(strings.TrimSuffix(s, suf))
				changed = true
			}
		}
	}
	return s
}

// terms is the canonical word set of a label.
type terms struct {
	words map[string]bool
}

func newTerms(raw string) terms {
	text := " " + strings.Join(splitWords(raw), " ") + " "
	text = stripAffixes(strings.TrimSpace(text))
	text = " " + text + " "
	for _, p := range phraseSynonyms {
		text = strings.ReplaceAll(text, " "+p.from+" ", " "+p.to+" ")
	}

	words := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		if syn, ok := tokenSynonyms[w]; ok {
			w = syn
		}
		words[w] = true
	}
	return terms{words: words}
}

func (t terms) has(words ...string) bool {
	for _, w := range words {
		if !t.words[w] {
			return false
		}
	}
	return true
}

func (t terms) any(words ...string) bool {
	for _, w := range words {
		if t.words[w] {
			return true
		}
	}
	return false
}

// only reports whether word is the sole term, ignoring qualifiers like "batting".
func (t terms) only(word string) bool {
	if !t.words[word] {
		return false
	}
	for w := range t.words {
		if w != word && !qualifiers[w] {
			return false
		}
	}
	return true
}

var qualifiers = map[string]bool{
	"batting": true, "pitching": true, "player": true, "game": true, "total": true,
	"over": true, "under": true, "+": true,
}

// splitWords lowercases raw, splits it on separators and breaks run-together words into known
// words. Casing never decides a boundary, so "stolenBases" and "stolenbases" split the same way.
// "+" is kept as its own word so combo labels like "Rush+Rec" survive.
func splitWords(raw string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, segment(string(cur))...)
			cur = cur[:0]
		}
	}
	for _, r := range strings.ToLower(raw) {
		switch {
		case r == '+' || r == '&':
			flush()
			words = append(words, "+")
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return words
}

// ruleWords are terms the rules test for that the synonym tables never spell out.
var ruleWords = []string{
	"passing", "rushing", "receiving", "yards", "touchdowns", "first", "last", "anytime", "longest",
	"completions", "receptions", "attempts", "interceptions", "kicking", "sacks", "tackles", "saves",
	"goals", "shots", "fantasy", "score", "points", "rebounds", "assists", "steals", "blocks",
	"turnovers", "allowed", "walks", "strikeouts", "rbis", "singles", "doubles", "triples", "hits",
	"runs", "outs", "made", "defense",
}

// shortPieces are the only words under three letters segment may split off.
var shortPieces = map[string]bool{"on": true, "td": true}

var vocabulary = buildVocabulary()

func buildVocabulary() map[string]bool {
	v := make(map[string]bool)
	add := func(w string) {
		if w != "" && !strings.ContainsAny(w, "_+") {
			v[w] = true
		}
	}
	for from, to := range tokenSynonyms {
		add(from)
		add(to)
	}
	for _, p := range phraseSynonyms {
		for _, w := range strings.Fields(p.from) {
			add(w)
		}
	}
	for w := range qualifiers {
		add(w)
	}
	for _, w := range ruleWords {
		add(w)
	}
	return v
}

// segment splits a run-together word such as "stolenbases" into the fewest known words.
// Known words, and words known pieces cannot cover entirely, come back unchanged.
func segment(word string) []string {
	if vocabulary[word] {
		return []string{word}
	}
	n := len(word)
	best := make([][]string, n+1)
	best[0] = []string{}
	for end := 1; end <= n; end++ {
		for start := 0; start < end; start++ {
			if best[start] == nil {
				continue
			}
			piece := word[start:end]
			if !vocabulary[piece] || (len(piece) < 3 && !shortPieces[piece]) {
				continue
			}
			if best[end] == nil || len(best[start])+1 < len(best[end]) {
				best[end] = append(append([]string(nil), best[start]...), piece)
			}
		}
	}
	if best[n] == nil {
		return []string{word}
	}
	return best[n]
}

// CanonicalPropTypes lists every key a rule can produce, in rule order without repeats.
func CanonicalPropTypes() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, group := range ruleGroups {
		for _, rule := range group {
			if !seen[rule.key] {
				seen[rule.key] = true
				keys = append(keys, rule.key)
			}
		}
	}
	return keys
}
