package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fortuna/propline/internal/store"
)

var propLineUpsert = upsertStatement{
	table: "proplines",
	columns: []string{
		"conflict_key", "player_id", "player_name", "team", "opponent", "opponent_known", "home_away",
		"league", "season", "game_id", "event_date", "prop_type", "raw_stat_id", "sportsbook",
		"line", "over_odds", "under_odds", "available",
	},
	update: assignments(
		overwrite("line", "over_odds", "under_odds", "available"),
		fillIn("proplines", "player_name", "team", "home_away"),
		opponentFrom("proplines"),
	),
}

// PropLineRepository handles proplines data access
type PropLineRepository struct {
	db *store.Database
}

// NewPropLineRepository creates a new prop line repository
func NewPropLineRepository(db *store.Database) *PropLineRepository {
	return &PropLineRepository{db: db}
}

// UpsertPropLines inserts or updates rows keyed by conflict_key in one transaction.
// Callers must not pass two rows with the same key.
func (r *PropLineRepository) UpsertPropLines(ctx context.Context, rows []store.PropLine) ([]store.UpsertedRow, error) {
	args := make([]interface{}, 0, len(rows)*len(propLineUpsert.columns))
	for _, p := range rows {
		args = append(args,
			p.ConflictKey, p.PlayerID, p.PlayerName, p.Team, p.Opponent, p.OpponentKnown, p.HomeAway,
			p.League, p.Season, p.GameID, p.EventDate, p.PropType, p.RawStatID, p.Sportsbook,
			p.Line, p.OverOdds, p.UnderOdds, p.Available,
		)
	}
	return propLineUpsert.exec(ctx, r.db.DB(), len(rows), args)
}

// GetByConflictKey returns a single prop line.
func (r *PropLineRepository) GetByConflictKey(ctx context.Context, key string) (*store.PropLine, error) {
	query := `
		SELECT id, conflict_key, player_id, player_name, team, opponent, opponent_known, home_away,
			league, season, game_id, event_date, prop_type, raw_stat_id, sportsbook,
			line, over_odds, under_odds, available, created_at, updated_at
		FROM proplines
		WHERE conflict_key = $1
	`

	p := &store.PropLine{}
	err := r.db.DB().QueryRowContext(ctx, query, key).Scan(
		&p.ID, &p.ConflictKey, &p.PlayerID, &p.PlayerName, &p.Team, &p.Opponent, &p.OpponentKnown, &p.HomeAway,
		&p.League, &p.Season, &p.GameID, &p.EventDate, &p.PropType, &p.RawStatID, &p.Sportsbook,
		&p.Line, &p.OverOdds, &p.UnderOdds, &p.Available, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("querying prop line: %w", err)
	}
	return p, nil
}

// PropTypeCounts returns how many lines each prop type has for league since the given date.
func (r *PropLineRepository) PropTypeCounts(ctx context.Context, league string, since time.Time) ([]store.PropTypeCount, error) {
	query := `
		SELECT prop_type, COUNT(*)
		FROM proplines
		WHERE league = $1 AND event_date >= $2
		GROUP BY prop_type
		ORDER BY COUNT(*) DESC, prop_type
	`

	rows, err := r.db.DB().QueryContext(ctx, query, strings.ToLower(league), since)
	if err != nil {
		return nil, fmt.Errorf("querying prop type counts: %w", err)
	}
	defer rows.Close()

	var counts []store.PropTypeCount
	for rows.Next() {
		var c store.PropTypeCount
		if err := rows.Scan(&c.PropType, &c.Rows); err != nil {
			return nil, fmt.Errorf("scanning prop type count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
