package sgo

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// EventsResponse is the envelope returned by GET /events.
type EventsResponse struct {
	Success    bool       `json:"success"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	Data       []RawEvent `json:"data"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// RawEvent is one sporting event as delivered upstream. Only the fields extraction needs are decoded.
type RawEvent struct {
	EventID   string                 `json:"eventID"`
	ID        string                 `json:"id,omitempty"`
	SportID   string                 `json:"sportID,omitempty"`
	LeagueID  string                 `json:"leagueID"`
	Season    FlexString             `json:"season,omitempty"`
	StartTime string                 `json:"startTime,omitempty"`
	Status    EventStatus            `json:"status"`
	Teams     EventTeams             `json:"teams"`
	Odds      map[string]OddEntry    `json:"odds"`
	Players   map[string]PlayerEntry `json:"players"`
}

// EventStatus carries scheduling and settlement flags.
type EventStatus struct {
	StartsAt  string `json:"startsAt"`
	Started   bool   `json:"started"`
	Completed bool   `json:"completed"`
	Cancelled bool   `json:"cancelled"`
	Finalized bool   `json:"finalized"`
}

// EventTeams holds the two sides of an event.
type EventTeams struct {
	Home Team `json:"home"`
	Away Team `json:"away"`
}

// Team identifies one side.
type Team struct {
	TeamID string    `json:"teamID"`
	Names  TeamNames `json:"names"`
}

// TeamNames are the provider's display variants.
type TeamNames struct {
	Short  string `json:"short"`
	Medium string `json:"medium"`
	Long   string `json:"long"`
}

// PlayerEntry is the player metadata embedded in an event.
type PlayerEntry struct {
	PlayerID  string `json:"playerID"`
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	TeamID    string `json:"teamID"`
}

// OddEntry is one priced side of a market.
type OddEntry struct {
	OddID         string               `json:"oddID"`
	OpposingOddID string               `json:"opposingOddID"`
	MarketName    string               `json:"marketName"`
	StatID        string               `json:"statID"`
	StatEntityID  string               `json:"statEntityID"`
	PlayerID      string               `json:"playerID"`
	PeriodID      string               `json:"periodID"`
	BetTypeID     string               `json:"betTypeID"`
	SideID        string               `json:"sideID"`
	Cancelled     bool                 `json:"cancelled"`
	Ended         bool                 `json:"ended"`
	BookOdds      FlexFloat            `json:"bookOdds"`
	FairOdds      FlexFloat            `json:"fairOdds"`
	BookOverUnder FlexFloat            `json:"bookOverUnder"`
	FairOverUnder FlexFloat            `json:"fairOverUnder"`
	Score         FlexFloat            `json:"score"`
	ByBookmaker   map[string]BookPrice `json:"byBookmaker"`
}

// BookPrice is one sportsbook's quote for an odd entry.
type BookPrice struct {
	Odds      FlexFloat `json:"odds"`
	OverUnder FlexFloat `json:"overUnder"`
	Available *bool     `json:"available"`
	Deeplink  string    `json:"deeplink"`
}

// GameID returns the event identifier, falling back to the legacy "id" field.
func (e RawEvent) GameID() string {
	if e.EventID != "" {
		return e.EventID
	}
	return e.ID
}

// StartsAt parses the scheduled start. Zero when absent or unparseable.
func (e RawEvent) StartsAt() time.Time {
	for _, raw := range []string{e.Status.StartsAt, e.StartTime} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FlexFloat decodes numbers that may arrive as JSON numbers, strings like "+120", or null.
type FlexFloat struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
	}

	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		// leave invalid; the extractor reports the record
		return nil
	}
	f.Value, f.Valid = v, true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// FlexString decodes a value that may be a JSON string or number.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(strings.TrimSpace(str))
		return nil
	}
	*s = FlexString(string(data))
	return nil
}

// MaxAmericanOdds bounds plausible American prices.
const MaxAmericanOdds = 2000

// ValidAmerican reports whether v is a usable American price: finite, non-zero, |v| <= 2000.
func ValidAmerican(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) || v == 0 {
		return false
	}
	return math.Abs(v) <= MaxAmericanOdds
}

// americanOdds returns a pointer to the rounded price, nil when invalid.
func americanOdds(f FlexFloat) *int {
	if !f.Valid || !ValidAmerican(f.Value) {
		return nil
	}
	v := int(math.Round(f.Value))
	return &v
}
