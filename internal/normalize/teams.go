package normalize

import "strings"

var teamAbbreviations = map[string]map[string]string{
	"NFL": {
		"arizona cardinals": "ARI", "atlanta falcons": "ATL", "baltimore ravens": "BAL",
		"buffalo bills": "BUF", "carolina panthers": "CAR", "chicago bears": "CHI",
		"cincinnati bengals": "CIN", "cleveland browns": "CLE", "dallas cowboys": "DAL",
		"denver broncos": "DEN", "detroit lions": "DET", "green bay packers": "GB",
		"houston texans": "HOU", "indianapolis colts": "IND", "jacksonville jaguars": "JAX",
		"kansas city chiefs": "KC", "las vegas raiders": "LV", "los angeles chargers": "LAC",
		"los angeles rams": "LAR", "miami dolphins": "MIA", "minnesota vikings": "MIN",
		"new england patriots": "NE", "new orleans saints": "NO", "new york giants": "NYG",
		"new york jets": "NYJ", "philadelphia eagles": "PHI", "pittsburgh steelers": "PIT",
		"san francisco 49ers": "SF", "seattle seahawks": "SEA", "tampa bay buccaneers": "TB",
		"tennessee titans": "TEN", "washington commanders": "WAS",
	},
	"NBA": {
		"atlanta hawks": "ATL", "boston celtics": "BOS", "brooklyn nets": "BKN",
		"charlotte hornets": "CHA", "chicago bulls": "CHI", "cleveland cavaliers": "CLE",
		"dallas mavericks": "DAL", "denver nuggets": "DEN", "detroit pistons": "DET",
		"golden state warriors": "GSW", "houston rockets": "HOU", "indiana pacers": "IND",
		"los angeles clippers": "LAC", "los angeles lakers": "LAL", "memphis grizzlies": "MEM",
		"miami heat": "MIA", "milwaukee bucks": "MIL", "minnesota timberwolves": "MIN",
		"new orleans pelicans": "NOP", "new york knicks": "NYK", "oklahoma city thunder": "OKC",
		"orlando magic": "ORL", "philadelphia 76ers": "PHI", "phoenix suns": "PHX",
		"portland trail blazers": "POR", "sacramento kings": "SAC", "san antonio spurs": "SAS",
		"toronto raptors": "TOR", "utah jazz": "UTA", "washington wizards": "WAS",
	},
	"MLB": {
		"arizona diamondbacks": "ARI", "atlanta braves": "ATL", "baltimore orioles": "BAL",
		"boston red sox": "BOS", "chicago cubs": "CHC", "chicago white sox": "CWS",
		"cincinnati reds": "CIN", "cleveland guardians": "CLE", "colorado rockies": "COL",
		"detroit tigers": "DET", "houston astros": "HOU", "kansas city royals": "KC",
		"los angeles angels": "LAA", "los angeles dodgers": "LAD", "miami marlins": "MIA",
		"milwaukee brewers": "MIL", "minnesota twins": "MIN", "new york mets": "NYM",
		"new york yankees": "NYY", "oakland athletics": "OAK", "athletics": "ATH",
		"philadelphia phillies": "PHI", "pittsburgh pirates": "PIT", "san diego padres": "SD",
		"san francisco giants": "SF", "seattle mariners": "SEA", "st. louis cardinals": "STL",
		"tampa bay rays": "TB", "texas rangers": "TEX", "toronto blue jays": "TOR",
		"washington nationals": "WSH",
	},
	"NHL": {
		"anaheim ducks": "ANA", "arizona coyotes": "ARI", "utah hockey club": "UTA",
		"boston bruins": "BOS", "buffalo sabres": "BUF", "calgary flames": "CGY",
		"carolina hurricanes": "CAR", "chicago blackhawks": "CHI", "colorado avalanche": "COL",
		"columbus blue jackets": "CBJ", "dallas stars": "DAL", "detroit red wings": "DET",
		"edmonton oilers": "EDM", "florida panthers": "FLA", "los angeles kings": "LAK",
		"minnesota wild": "MIN", "montreal canadiens": "MTL", "nashville predators": "NSH",
		"new jersey devils": "NJD", "new york islanders": "NYI", "new york rangers": "NYR",
		"ottawa senators": "OTT", "philadelphia flyers": "PHI", "pittsburgh penguins": "PIT",
		"san jose sharks": "SJS", "seattle kraken": "SEA", "st. louis blues": "STL",
		"tampa bay lightning": "TBL", "toronto maple leafs": "TOR", "vancouver canucks": "VAN",
		"vegas golden knights": "VGK", "washington capitals": "WSH", "winnipeg jets": "WPG",
	},
}

// TeamAbbreviation maps a team name to its league abbreviation. Names of three characters or
// fewer are treated as abbreviations already; unknown names come back uppercased.
func TeamAbbreviation(league, team string) string {
	team = strings.TrimSpace(team)
	if team == "" {
		return ""
	}
	if len(team) <= 3 {
		return strings.ToUpper(team)
	}
	if abbr, ok := teamAbbreviations[strings.ToUpper(strings.TrimSpace(league))][strings.ToLower(team)]; ok {
		return abbr
	}
	return strings.ToUpper(team)
}

// SportForLeague returns the sport family for a league code, "" when unknown.
func SportForLeague(league string) string {
	switch strings.ToUpper(strings.TrimSpace(league)) {
	case "NFL", "NCAAF", "CFL", "XFL", "UFL":
		return "football"
	case "NBA", "NCAAB", "WNBA":
		return "basketball"
	case "MLB":
		return "baseball"
	case "NHL":
		return "hockey"
	case "EPL", "MLS", "UEFA_CHAMPIONS_LEAGUE", "LA_LIGA", "BUNDESLIGA", "IT_SERIE_A", "FR_LIGUE_1":
		return "soccer"
	default:
		return ""
	}
}
