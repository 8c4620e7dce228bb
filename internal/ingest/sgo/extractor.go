package sgo

import (
	"iter"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/propline/internal/normalize"
)

const (
	betTypeOverUnder = "ou"
	sideOver         = "over"
	sideUnder        = "under"
	periodFullGame   = "game"

	// UnknownOpponent marks props whose player could not be placed on either side.
	UnknownOpponent = "UNK"
)

// nonPlayerEntities appear in the player slot of team and game markets.
var nonPlayerEntities = map[string]bool{"all": true, "home": true, "away": true}

// OddKey is the parsed form of "statID-playerID-periodID-betTypeID-sideID".
type OddKey struct {
	StatID    string
	PlayerID  string
	PeriodID  string
	BetTypeID string
	SideID    string
}

// ParseOddID splits a composite odd ID into its five components.
func ParseOddID(oddID string) (OddKey, bool) {
	parts := strings.Split(oddID, "-")
	if len(parts) != 5 {
		return OddKey{}, false
	}
	for _, p := range parts {
		if p == "" {
			return OddKey{}, false
		}
	}
	return OddKey{
		StatID:    parts[0],
		PlayerID:  parts[1],
		PeriodID:  parts[2],
		BetTypeID: parts[3],
		SideID:    parts[4],
	}, true
}

// parseOddEntry accepts hyphenated player IDs when the entry's own playerID confirms the split.
func parseOddEntry(oddID string, entry OddEntry) (OddKey, bool) {
	if key, ok := ParseOddID(oddID); ok {
		return key, true
	}
	parts := strings.Split(oddID, "-")
	if len(parts) <= 5 || entry.PlayerID == "" {
		return OddKey{}, false
	}
	n := len(parts)
	playerID := strings.Join(parts[1:n-3], "-")
	if playerID != entry.PlayerID || parts[0] == "" {
		return OddKey{}, false
	}
	return OddKey{
		StatID:    parts[0],
		PlayerID:  playerID,
		PeriodID:  parts[n-3],
		BetTypeID: parts[n-2],
		SideID:    parts[n-1],
	}, true
}

// BookLine is one sportsbook's version of a prop.
type BookLine struct {
	Sportsbook string
	Line       float64
	OverOdds   *int
	UnderOdds  *int
	Available  bool
	Deeplink   string
}

// ExtractedProp is a player over/under prop pulled out of one event.
type ExtractedProp struct {
	OddID      string
	EventID    string
	League     string
	Season     string
	EventDate  time.Time
	PlayerID   string
	PlayerName string
	Team       string
	Opponent   string
	// OpponentKnown is false when the player's team matched neither side; Opponent is then "UNK".
	OpponentKnown bool
	HomeAway      string

	StatID          string
	PropType        string
	PropTypeMatched bool

	Line      float64
	OverOdds  *int
	UnderOdds *int
	Books     []BookLine

	// Result is the realized stat once the market has settled.
	Result *float64
}

// ExtractProps yields one ExtractedProp per full-game player over/under entry in event.
// Entries that look like player props but cannot be used are yielded as *MalformedRecordError
// with a zero prop. Team and game markets, other bet types, other periods, under sides and
// cancelled entries are filtered without a report.
//
// The sequence holds no state between iterations; ranging over it twice yields the same items
// in the same order.
func ExtractProps(event RawEvent) iter.Seq2[ExtractedProp, error] {
	return func(yield func(ExtractedProp, error) bool) {
		if len(event.Odds) == 0 || len(event.Players) == 0 {
			return
		}

		oddIDs := make([]string, 0, len(event.Odds))
		for id := range event.Odds {
			oddIDs = append(oddIDs, id)
		}
		sort.Strings(oddIDs)

		ctx := newEventContext(event)
		for _, oddID := range oddIDs {
			prop, emit, err := ctx.extract(oddID, event.Odds[oddID])
			if !emit {
				continue
			}
			if !yield(prop, err) {
				return
			}
		}
	}
}

// Collect drains a sequence into props and skip reports.
func Collect(seq iter.Seq2[ExtractedProp, error]) ([]ExtractedProp, []*MalformedRecordError) {
	var (
		props   []ExtractedProp
		skipped []*MalformedRecordError
	)
	for prop, err := range seq {
		if err != nil {
			if mre, ok := err.(*MalformedRecordError); ok {
				skipped = append(skipped, mre)
			}
			continue
		}
		props = append(props, prop)
	}
	return props, skipped
}

type eventContext struct {
	event  RawEvent
	gameID string
	league string
	date   time.Time
	season string
	home   string
	away   string
	homeID string
	awayID string
}

func newEventContext(event RawEvent) *eventContext {
	league := strings.ToUpper(strings.TrimSpace(event.LeagueID))
	date := event.StartsAt()

	season := string(event.Season)
	if season == "" && !date.IsZero() {
		season = strconv.Itoa(date.Year())
	}

	return &eventContext{
		event:  event,
		gameID: event.GameID(),
		league: league,
		date:   date,
		season: season,
		home:   teamLabel(league, event.Teams.Home),
		away:   teamLabel(league, event.Teams.Away),
		homeID: event.Teams.Home.TeamID,
		awayID: event.Teams.Away.TeamID,
	}
}

func teamLabel(league string, t Team) string {
	if t.Names.Short != "" {
		return strings.ToUpper(t.Names.Short)
	}
	if t.Names.Long != "" {
		return normalize.TeamAbbreviation(league, t.Names.Long)
	}
	return strings.ToUpper(t.TeamID)
}

// extract returns emit=false when the entry is filtered silently.
func (c *eventContext) extract(oddID string, entry OddEntry) (ExtractedProp, bool, error) {
	key, parsed := parseOddEntry(oddID, entry)
	if !parsed {
		return ExtractedProp{}, true, &MalformedRecordError{EventID: c.gameID, OddID: oddID, Reason: ReasonBadOddID}
	}

	if nonPlayerEntities[strings.ToLower(key.PlayerID)] ||
		!strings.EqualFold(key.BetTypeID, betTypeOverUnder) ||
		!strings.EqualFold(key.SideID, sideOver) ||
		!strings.EqualFold(key.PeriodID, periodFullGame) ||
		entry.Cancelled {
		return ExtractedProp{}, false, nil
	}

	player, found := c.event.Players[key.PlayerID]
	if !found {
		return ExtractedProp{}, true, &MalformedRecordError{
			EventID:  c.gameID,
			OddID:    oddID,
			PlayerID: key.PlayerID,
			StatID:   key.StatID,
			Reason:   ReasonUnknownPlayer,
		}
	}

	line, ok := firstValid(entry.BookOverUnder, entry.FairOverUnder)
	if !ok {
		return ExtractedProp{}, true, &MalformedRecordError{
			EventID:  c.gameID,
			OddID:    oddID,
			PlayerID: key.PlayerID,
			StatID:   key.StatID,
			Reason:   ReasonBadLine,
		}
	}

	statID := key.StatID
	if entry.StatID != "" {
		statID = entry.StatID
	}
	propType, matched := normalize.LookupPropType(statID)

	under, hasUnder := c.opposing(oddID, entry)

	prop := ExtractedProp{
		OddID:           oddID,
		EventID:         c.gameID,
		League:          c.league,
		Season:          c.season,
		EventDate:       c.date,
		PlayerID:        key.PlayerID,
		PlayerName:      playerName(key.PlayerID, player),
		StatID:          statID,
		PropType:        propType,
		PropTypeMatched: matched,
		Line:            line,
		OverOdds:        americanOdds(pick(entry.BookOdds, entry.FairOdds)),
	}
	if hasUnder {
		prop.UnderOdds = americanOdds(pick(under.BookOdds, under.FairOdds))
	}
	if entry.Score.Valid {
		v := entry.Score.Value
		prop.Result = &v
	}

	c.placeTeams(&prop, player)
	prop.Books = bookLines(line, entry, under)

	return prop, true, nil
}

func (c *eventContext) placeTeams(prop *ExtractedProp, player PlayerEntry) {
	switch {
	case player.TeamID != "" && player.TeamID == c.homeID:
		prop.Team, prop.Opponent, prop.HomeAway, prop.OpponentKnown = c.home, c.away, "home", true
	case player.TeamID != "" && player.TeamID == c.awayID:
		prop.Team, prop.Opponent, prop.HomeAway, prop.OpponentKnown = c.away, c.home, "away", true
	default:
		prop.Team = strings.ToUpper(player.TeamID)
		prop.Opponent = UnknownOpponent
	}
	if prop.Opponent == "" {
		prop.Opponent, prop.OpponentKnown = UnknownOpponent, false
	}
}

func (c *eventContext) opposing(oddID string, entry OddEntry) (OddEntry, bool) {
	if entry.OpposingOddID != "" {
		if opp, ok := c.event.Odds[entry.OpposingOddID]; ok {
			return opp, true
		}
	}
	if strings.HasSuffix(oddID, "-"+sideOver) {
		if opp, ok := c.event.Odds[strings.TrimSuffix(oddID, sideOver)+sideUnder]; ok {
			return opp, true
		}
	}
	return OddEntry{}, false
}

func bookLines(line float64, over, under OddEntry) []BookLine {
	if len(over.ByBookmaker) == 0 {
		return nil
	}

	books := make([]string, 0, len(over.ByBookmaker))
	for book := range over.ByBookmaker {
		books = append(books, book)
	}
	sort.Strings(books)

	out := make([]BookLine, 0, len(books))
	for _, book := range books {
		price := over.ByBookmaker[book]
		bl := BookLine{
			Sportsbook: strings.ToLower(book),
			Line:       line,
			OverOdds:   americanOdds(price.Odds),
			Available:  price.Available == nil || *price.Available,
			Deeplink:   price.Deeplink,
		}
		if price.OverUnder.Valid {
			bl.Line = price.OverUnder.Value
		}
		if up, ok := under.ByBookmaker[book]; ok {
			bl.UnderOdds = americanOdds(up.Odds)
		}
		out = append(out, bl)
	}
	return out
}

// playerName derives the display name from the ID; the embedded name only fills in when the ID
// carries nothing usable.
func playerName(playerID string, p PlayerEntry) string {
	if name := normalize.ExtractPlayerName(playerID); name != "" {
		return name
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func firstValid(vals ...FlexFloat) (float64, bool) {
	for _, v := range vals {
		if v.Valid {
			return v.Value, true
		}
	}
	return 0, false
}

func pick(primary, fallback FlexFloat) FlexFloat {
	if primary.Valid && ValidAmerican(primary.Value) {
		return primary
	}
	return fallback
}
