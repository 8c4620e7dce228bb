package backfill

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/fortuna/propline/internal/coverage"
)

// JobType enumerates the supported ingestion modes.
type JobType string

const (
	// JobTypeDays looks back a number of days from today for one league.
	JobTypeDays JobType = "days"
	// JobTypeDateRange covers an explicit inclusive date range for one league.
	JobTypeDateRange JobType = "date_range"
	// JobTypeAllLeagues looks back a number of days for every configured league.
	JobTypeAllLeagues JobType = "all_leagues"
	// JobTypeSeason fetches one league by season instead of by date.
	JobTypeSeason JobType = "season"
)

// JobStatus represents the lifecycle state for a queued job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job models the database representation of an ingestion job.
type Job struct {
	JobID           string          `json:"job_id"`
	JobType         JobType         `json:"job_type"`
	Leagues         pq.StringArray  `json:"leagues"`
	Days            int             `json:"days,omitempty"`
	Season          sql.NullString  `json:"season"`
	StartDate       sql.NullTime    `json:"start_date"`
	EndDate         sql.NullTime    `json:"end_date"`
	DryRun          bool            `json:"dry_run"`
	Status          JobStatus       `json:"status"`
	StatusMessage   sql.NullString  `json:"status_message"`
	ProgressCurrent int             `json:"progress_current"`
	ProgressTotal   int             `json:"progress_total"`
	Summary         json.RawMessage `json:"summary,omitempty"`
	LastError       sql.NullString  `json:"last_error"`
	RetryCount      int             `json:"retry_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	StartedAt       sql.NullTime    `json:"started_at"`
	CompletedAt     sql.NullTime    `json:"completed_at"`
}

// Copy returns a shallow copy to prevent external mutation.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	cpy := *j
	return &cpy
}

// JobSpec describes the work to be performed by the runner.
type JobSpec struct {
	Type    JobType
	League  string
	Leagues []string
	Days    int
	Start   time.Time
	End     time.Time
	Season  string
	DryRun  bool
}

// Validate checks that the fields required by the job type are present.
func (s JobSpec) Validate() error {
	switch s.Type {
	case JobTypeDays:
		if s.League == "" {
			return fmt.Errorf("%s job requires a league", s.Type)
		}
		if s.Days <= 0 {
			return fmt.Errorf("%s job requires days > 0", s.Type)
		}
	case JobTypeDateRange:
		if s.League == "" {
			return fmt.Errorf("%s job requires a league", s.Type)
		}
		if s.Start.IsZero() || s.End.IsZero() {
			return fmt.Errorf("%s job requires start and end dates", s.Type)
		}
	case JobTypeAllLeagues:
		if s.Days <= 0 {
			return fmt.Errorf("%s job requires days > 0", s.Type)
		}
	case JobTypeSeason:
		if s.League == "" || s.Season == "" {
			return fmt.Errorf("%s job requires a league and a season", s.Type)
		}
	default:
		return fmt.Errorf("unsupported job type %q", s.Type)
	}
	return nil
}

// leagues resolves which leagues the spec covers.
func (s JobSpec) leagues(defaults []string) []string {
	var src []string
	switch {
	case s.Type != JobTypeAllLeagues:
		src = []string{s.League}
	case len(s.Leagues) > 0:
		src = s.Leagues
	default:
		src = defaults
	}

	seen := make(map[string]bool, len(src))
	out := make([]string, 0, len(src))
	for _, l := range src {
		l = strings.ToUpper(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// slices returns the fetch windows for one league: one per date, or a single season window.
func (s JobSpec) slices(now time.Time) []slice {
	switch s.Type {
	case JobTypeSeason:
		return []slice{{season: s.Season}}
	case JobTypeDateRange:
		dates := enumerateDates(s.Start, s.End)
		out := make([]slice, len(dates))
		for i, d := range dates {
			out[i] = slice{date: d, season: s.Season}
		}
		return out
	default:
		today := truncateDate(now)
		out := make([]slice, s.Days)
		for i := range out {
			out[i] = slice{date: today.AddDate(0, 0, -i), season: s.Season}
		}
		return out
	}
}

// slice is one upstream request window.
type slice struct {
	date   time.Time
	season string
}

func (s slice) label() string {
	if s.date.IsZero() {
		return "season " + s.season
	}
	return s.date.Format("2006-01-02")
}

// Reporter receives lifecycle callbacks from the runner. Runs spanning several leagues call it
// from multiple goroutines.
type Reporter interface {
	OnJobStart(spec JobSpec)
	OnDateStart(league string, date time.Time, index int, total int)
	OnDateFailed(league string, date time.Time, err error)
	OnProgress(message string, current int, total int)
	OnJobComplete(summary *RunSummary)
	OnJobError(err error)
}

// RunState is a step of the per-run state machine.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateFetching   RunState = "fetching_date_chunk"
	StateExtracting RunState = "extracting_and_normalizing"
	StateUpserting  RunState = "upserting"
	StateReporting  RunState = "reporting"
	StateDone       RunState = "done"
)

// LeagueStats are the counters for one league within a run.
type LeagueStats struct {
	DatesProcessed   int      `json:"dates_processed"`
	DatesFailed      int      `json:"dates_failed"`
	FailedDates      []string `json:"failed_dates,omitempty"`
	EventsSeen       int      `json:"events_seen"`
	RecordsSeen      int      `json:"records_seen"`
	PropsExtracted   int      `json:"props_extracted"`
	RowsBuilt        int      `json:"rows_built"`
	Upserted         int      `json:"upserted"`
	Inserted         int      `json:"inserted"`
	Updated          int      `json:"updated"`
	Skipped          int      `json:"skipped"`
	Invalid          int      `json:"invalid"`
	Duplicates       int      `json:"duplicates"`
	Errors           int      `json:"errors"`
	GameLogsUpserted int      `json:"game_logs_upserted"`
	State            RunState `json:"state"`

	propTypes map[string]bool
}

func (s *LeagueStats) add(o *LeagueStats) {
	s.DatesProcessed += o.DatesProcessed
	s.DatesFailed += o.DatesFailed
	s.EventsSeen += o.EventsSeen
	s.RecordsSeen += o.RecordsSeen
	s.PropsExtracted += o.PropsExtracted
	s.RowsBuilt += o.RowsBuilt
	s.Upserted += o.Upserted
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Skipped += o.Skipped
	s.Invalid += o.Invalid
	s.Duplicates += o.Duplicates
	s.Errors += o.Errors
	s.GameLogsUpserted += o.GameLogsUpserted
}

// RunSummary is the structured result of every completed run.
type RunSummary struct {
	RunID     string                  `json:"run_id"`
	Mode      JobType                 `json:"mode"`
	DryRun    bool                    `json:"dry_run"`
	Leagues   map[string]*LeagueStats `json:"leagues"`
	Totals    LeagueStats             `json:"totals"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration_ns"`
	State     RunState                `json:"state"`
	Coverage  coverage.Summary        `json:"coverage"`
	Gaps      []coverage.Gap          `json:"gaps,omitempty"`
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveJob *Job   `json:"active_job,omitempty"`
	History   []*Job `json:"recent_jobs,omitempty"`
}

// ConfigurationError aborts a run before any work starts.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
}
