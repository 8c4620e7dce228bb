package coverage

import (
	"math"
	"sort"

	"github.com/fortuna/propline/internal/normalize"
)

// expectedPropTypes lists the canonical prop types books routinely offer per sport.
var expectedPropTypes = map[string][]string{
	"football": {
		"passing_yards", "passing_tds", "completions", "pass_attempts", "interceptions",
		"rushing_yards", "rush_attempts", "receiving_yards", "receptions",
		"rush_rec_yards", "anytime_td",
	},
	"basketball": {
		"points", "rebounds", "assists", "threes_made", "steals", "blocks",
		"pts_reb_ast", "pts_reb", "pts_ast", "reb_ast",
	},
	"baseball": {
		"hits", "home_runs", "rbis", "runs", "total_bases", "strikeouts",
		"hits_allowed", "walks", "stolen_bases", "outs_recorded",
	},
	"hockey": {
		"goals", "assists", "points", "shots_on_goal", "saves", "blocked_shots",
		"power_play_points",
	},
	"soccer": {
		"goals", "assists", "shots_on_goal",
	},
}

// Gap compares the prop types seen for a league against what books usually list.
type Gap struct {
	League          string   `json:"league"`
	Sport           string   `json:"sport"`
	Expected        int      `json:"expected"`
	Observed        []string `json:"observed"`
	Missing         []string `json:"missing"`
	Extra           []string `json:"extra"`
	CoveragePercent float64  `json:"coverage_percent"`
}

// ExpectedPropTypes returns the expected canonical prop types for league, nil when the sport is unknown.
func ExpectedPropTypes(league string) []string {
	exp := expectedPropTypes[normalize.SportForLeague(league)]
	return append([]string(nil), exp...)
}

// AnalyzeGaps normalizes observed prop type labels and reports which expected types never appeared.
func AnalyzeGaps(league string, observed []string) Gap {
	sport := normalize.SportForLeague(league)
	expected := expectedPropTypes[sport]

	seen := make(map[string]bool, len(observed))
	for _, raw := range observed {
		seen[normalize.NormalizePropType(raw)] = true
	}

	gap := Gap{
		League:   league,
		Sport:    sport,
		Expected: len(expected),
		Observed: sortedKeys(seen),
		Missing:  []string{},
		Extra:    []string{},
	}

	want := make(map[string]bool, len(expected))
	hit := 0
	for _, pt := range expected {
		want[pt] = true
		if seen[pt] {
			hit++
		} else {
			gap.Missing = append(gap.Missing, pt)
		}
	}
	for _, pt := range gap.Observed {
		if !want[pt] {
			gap.Extra = append(gap.Extra, pt)
		}
	}

	if len(expected) > 0 {
		gap.CoveragePercent = math.Round(float64(hit)/float64(len(expected))*1000) / 10
	}
	return gap
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
