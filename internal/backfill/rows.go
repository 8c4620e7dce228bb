package backfill

import (
	"strings"
	"time"

	"github.com/fortuna/propline/internal/conflictkey"
	"github.com/fortuna/propline/internal/ingest/sgo"
	"github.com/fortuna/propline/internal/store"
)

// DefaultSportsbook labels the top-level prices of an odd entry.
const DefaultSportsbook = "consensus"

// buildRows fans each prop out to one row per sportsbook plus the consensus row, and turns settled
// props into game logs. fallbackDate stands in for events that carry no start time.
func buildRows(props []sgo.ExtractedProp, defaultBook string, fallbackDate time.Time) ([]store.PropLine, []store.GameLog) {
	if defaultBook == "" {
		defaultBook = DefaultSportsbook
	}

	lines := make([]store.PropLine, 0, len(props))
	var logs []store.GameLog

	for _, p := range props {
		date := p.EventDate
		if date.IsZero() {
			date = fallbackDate
		}
		date = truncateDate(date)
		league := strings.ToLower(p.League)

		base := store.PropLine{
			PlayerID:      p.PlayerID,
			PlayerName:    p.PlayerName,
			Team:          p.Team,
			Opponent:      p.Opponent,
			OpponentKnown: p.OpponentKnown,
			HomeAway:      p.HomeAway,
			League:        league,
			Season:        p.Season,
			GameID:        p.EventID,
			EventDate:     date,
			PropType:      p.PropType,
			RawStatID:     p.StatID,
		}

		consensus := base
		consensus.Sportsbook = defaultBook
		consensus.Line = p.Line
		consensus.OverOdds = store.NullOdds(p.OverOdds)
		consensus.UnderOdds = store.NullOdds(p.UnderOdds)
		consensus.Available = true
		consensus.ConflictKey = conflictkey.ForProp(p.PlayerID, p.EventID, p.PropType, defaultBook, league, p.Season)
		lines = append(lines, consensus)

		for _, b := range p.Books {
			if strings.EqualFold(b.Sportsbook, defaultBook) {
				continue
			}
			row := base
			row.Sportsbook = b.Sportsbook
			row.Line = b.Line
			row.OverOdds = store.NullOdds(b.OverOdds)
			row.UnderOdds = store.NullOdds(b.UnderOdds)
			row.Available = b.Available
			row.ConflictKey = conflictkey.ForProp(p.PlayerID, p.EventID, p.PropType, b.Sportsbook, league, p.Season)
			lines = append(lines, row)
		}

		if p.Result != nil {
			logs = append(logs, store.GameLog{
				ConflictKey:   conflictkey.ForGameLog(p.PlayerID, p.EventID, p.PropType, league, p.Season),
				PlayerID:      p.PlayerID,
				PlayerName:    p.PlayerName,
				Team:          p.Team,
				Opponent:      p.Opponent,
				OpponentKnown: p.OpponentKnown,
				League:        league,
				Season:        p.Season,
				GameID:        p.EventID,
				GameDate:      date,
				PropType:      p.PropType,
				Value:         *p.Result,
			})
		}
	}

	return lines, logs
}
