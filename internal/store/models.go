package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

// PropLine is one sportsbook's over/under line for a player stat in a game.
type PropLine struct {
	ID            int64         `json:"id" db:"id"`
	ConflictKey   string        `json:"conflict_key" db:"conflict_key"`
	PlayerID      string        `json:"player_id" db:"player_id"`
	PlayerName    string        `json:"player_name" db:"player_name"`
	Team          string        `json:"team" db:"team"`
	Opponent      string        `json:"opponent" db:"opponent"`
	OpponentKnown bool          `json:"opponent_known" db:"opponent_known"`
	HomeAway      string        `json:"home_away" db:"home_away"`
	League        string        `json:"league" db:"league"`
	Season        string        `json:"season" db:"season"`
	GameID        string        `json:"game_id" db:"game_id"`
	EventDate     time.Time     `json:"event_date" db:"event_date"`
	PropType      string        `json:"prop_type" db:"prop_type"`
	RawStatID     string        `json:"raw_stat_id" db:"raw_stat_id"`
	Sportsbook    string        `json:"sportsbook" db:"sportsbook"`
	Line          float64       `json:"line" db:"line"`
	OverOdds      sql.NullInt32 `json:"over_odds" db:"over_odds"`
	UnderOdds     sql.NullInt32 `json:"under_odds" db:"under_odds"`
	Available     bool          `json:"available" db:"available"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// Validate checks the columns the table requires.
func (p PropLine) Validate() error {
	if err := requireIdentity(p.ConflictKey, p.PlayerID, p.GameID, p.PropType, p.League, p.Season, p.EventDate); err != nil {
		return err
	}
	if p.Sportsbook == "" {
		return errors.New("missing sportsbook")
	}
	if math.IsNaN(p.Line) || math.IsInf(p.Line, 0) {
		return fmt.Errorf("line %v is not finite", p.Line)
	}
	return nil
}

// GameLog is a player's realized value for one stat in one game.
type GameLog struct {
	ID            int64     `json:"id" db:"id"`
	ConflictKey   string    `json:"conflict_key" db:"conflict_key"`
	PlayerID      string    `json:"player_id" db:"player_id"`
	PlayerName    string    `json:"player_name" db:"player_name"`
	Team          string    `json:"team" db:"team"`
	Opponent      string    `json:"opponent" db:"opponent"`
	OpponentKnown bool      `json:"opponent_known" db:"opponent_known"`
	League        string    `json:"league" db:"league"`
	Season        string    `json:"season" db:"season"`
	GameID        string    `json:"game_id" db:"game_id"`
	GameDate      time.Time `json:"game_date" db:"game_date"`
	PropType      string    `json:"prop_type" db:"prop_type"`
	Value         float64   `json:"value" db:"value"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks the columns the table requires.
func (g GameLog) Validate() error {
	if err := requireIdentity(g.ConflictKey, g.PlayerID, g.GameID, g.PropType, g.League, g.Season, g.GameDate); err != nil {
		return err
	}
	if math.IsNaN(g.Value) || math.IsInf(g.Value, 0) {
		return fmt.Errorf("value %v is not finite", g.Value)
	}
	return nil
}

func requireIdentity(key, playerID, gameID, propType, league, season string, date time.Time) error {
	switch {
	case key == "":
		return errors.New("missing conflict key")
	case playerID == "":
		return errors.New("missing player_id")
	case gameID == "":
		return errors.New("missing game_id")
	case propType == "":
		return errors.New("missing prop_type")
	case league == "":
		return errors.New("missing league")
	case season == "":
		return errors.New("missing season")
	case date.IsZero():
		return errors.New("missing date")
	}
	return nil
}

// UpsertedRow reports what happened to one row of an upsert statement.
type UpsertedRow struct {
	ConflictKey string
	Inserted    bool
}

// NullOdds converts an optional American price into a nullable column value.
func NullOdds(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

// PropTypeCount is one row of the coverage query.
type PropTypeCount struct {
	PropType string `json:"prop_type"`
	Rows     int    `json:"rows"`
}
