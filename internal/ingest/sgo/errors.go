package sgo

import "fmt"

// UpstreamFetchError wraps any failure to obtain a usable response: transport errors, timeouts,
// non-2xx statuses, success=false envelopes and undecodable bodies.
type UpstreamFetchError struct {
	League     string
	Date       string
	StatusCode int
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s %s: status %d: %v", e.League, e.Date, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s %s: %v", e.League, e.Date, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// SkipReason classifies why an odd entry was dropped.
type SkipReason string

const (
	ReasonBadOddID      SkipReason = "bad_odd_id"
	ReasonBadLine       SkipReason = "bad_line"
	ReasonUnknownPlayer SkipReason = "unknown_player"
)

// MalformedRecordError describes a single odd entry that could not become a prop.
type MalformedRecordError struct {
	EventID  string
	OddID    string
	PlayerID string
	StatID   string
	Reason   SkipReason
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("event %s odd %q: %s", e.EventID, e.OddID, e.Reason)
}
