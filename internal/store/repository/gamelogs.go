package repository

import (
	"context"

	"github.com/fortuna/propline/internal/store"
)

var gameLogUpsert = upsertStatement{
	table: "player_game_logs",
	columns: []string{
		"conflict_key", "player_id", "player_name", "team", "opponent", "opponent_known",
		"league", "season", "game_id", "game_date", "prop_type", "value",
	},
	update: assignments(
		overwrite("value"),
		fillIn("player_game_logs", "player_name", "team"),
		opponentFrom("player_game_logs"),
	),
}

// GameLogRepository handles player_game_logs data access
type GameLogRepository struct {
	db *store.Database
}

// NewGameLogRepository creates a new game log repository
func NewGameLogRepository(db *store.Database) *GameLogRepository {
	return &GameLogRepository{db: db}
}

// UpsertGameLogs inserts or updates rows keyed by conflict_key in one transaction.
func (r *GameLogRepository) UpsertGameLogs(ctx context.Context, rows []store.GameLog) ([]store.UpsertedRow, error) {
	args := make([]interface{}, 0, len(rows)*len(gameLogUpsert.columns))
	for _, g := range rows {
		args = append(args,
			g.ConflictKey, g.PlayerID, g.PlayerName, g.Team, g.Opponent, g.OpponentKnown,
			g.League, g.Season, g.GameID, g.GameDate, g.PropType, g.Value,
		)
	}
	return gameLogUpsert.exec(ctx, r.db.DB(), len(rows), args)
}
