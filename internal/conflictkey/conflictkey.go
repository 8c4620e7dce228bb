// Package conflictkey builds the uniqueness keys used for idempotent upserts.
// Nothing else in the module concatenates key fields by hand.
package conflictkey

import (
	"strings"

	"github.com/fortuna/propline/internal/normalize"
)

const (
	// Delimiter separates key fields. Occurrences inside a field are escaped.
	Delimiter = "|"

	gameLogMarker = "gl"
)

// Fields identifies one logical fact.
type Fields struct {
	PlayerID   string
	GameID     string
	PropType   string
	Sportsbook string
	League     string
	Season     string
}

// Build returns the prop-line key: player_id|game_id|prop_type|sportsbook|league|season.
// IDs are uppercased; prop type, sportsbook and league are lowercased.
func Build(f Fields) string {
	return join(
		upper(f.PlayerID),
		upper(f.GameID),
		propType(f.PropType),
		lower(f.Sportsbook),
		lower(f.League),
		strings.TrimSpace(f.Season),
	)
}

// ForProp is Build with positional arguments.
func ForProp(playerID, gameID, prop, sportsbook, league, season string) string {
	return Build(Fields{
		PlayerID:   playerID,
		GameID:     gameID,
		PropType:   prop,
		Sportsbook: sportsbook,
		League:     league,
		Season:     season,
	})
}

// ForGameLog returns the sportsbook-independent key for a realized game log.
// The "gl" marker keeps these keys disjoint from prop-line keys.
func ForGameLog(playerID, gameID, prop, league, season string) string {
	return join(
		gameLogMarker,
		upper(playerID),
		upper(gameID),
		propType(prop),
		lower(league),
		strings.TrimSpace(season),
	)
}

func join(parts ...string) string {
	for i, p := range parts {
		parts[i] = escape(p)
	}
	return strings.Join(parts, Delimiter)
}

var escaper = strings.NewReplacer(`\`, `\\`, Delimiter, `\`+Delimiter)

func escape(s string) string {
	return escaper.Replace(s)
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// propType re-normalizes so callers passing raw stat IDs still land on the canonical key.
// Canonical keys normalize to themselves, so already-normalized input is left alone.
func propType(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return normalize.NormalizePropType(s)
}
