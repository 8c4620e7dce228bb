package normalize

import "testing"

func TestTeamAbbreviation(t *testing.T) {
	tests := []struct {
		league, team, want string
	}{
		{"NFL", "Buffalo Bills", "BUF"},
		{"nfl", "  miami dolphins ", "MIA"},
		{"NBA", "Golden State Warriors", "GSW"},
		{"NHL", "St. Louis Blues", "STL"},
		{"MLB", "St. Louis Cardinals", "STL"},
		{"NHL", "Vegas Golden Knights", "VGK"},
		{"NFL", "kc", "KC"},
		{"NFL", "buf", "BUF"},
		{"NFL", "London Monarchs", "LONDON MONARCHS"},
		{"NBA", "Buffalo Bills", "BUFFALO BILLS"},
		{"NFL", "", ""},
	}

	for _, tt := range tests {
		if got := TeamAbbreviation(tt.league, tt.team); got != tt.want {
			t.Errorf("TeamAbbreviation(%q, %q) = %q, want %q", tt.league, tt.team, got, tt.want)
		}
	}
}

func TestSportForLeague(t *testing.T) {
	tests := map[string]string{
		"NFL":   "football",
		"ncaab": "basketball",
		"MLB":   "baseball",
		"NHL":   "hockey",
		"EPL":   "soccer",
		"CURL":  "",
	}
	for league, want := range tests {
		if got := SportForLeague(league); got != want {
			t.Errorf("SportForLeague(%q) = %q, want %q", league, got, want)
		}
	}
}
