package backfill

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/fortuna/propline/internal/store"
)

var jobColumnNames = []string{
	"job_id", "job_type", "leagues", "days", "season", "start_date", "end_date", "dry_run",
	"status", "status_message", "progress_current", "progress_total", "summary",
	"last_error", "retry_count", "created_at", "updated_at", "started_at", "completed_at",
}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	runner := NewRunner(nil, nil, nil, RunnerConfig{Leagues: []string{"NFL", "NBA"}})
	return NewService(store.WrapDB(conn), runner), mock
}

func jobRow(id string, jobType JobType, leagues string, days, total int, status JobStatus, summary []byte) *sqlmock.Rows {
	now := time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(jobColumnNames).AddRow(
		id, string(jobType), leagues, days, nil, nil, nil, false,
		string(status), "Queued", 0, total, summary,
		nil, 0, now, now, nil, nil,
	)
}

func TestRequestDeriveType(t *testing.T) {
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		req     Request
		want    JobType
		wantErr bool
	}{
		{"all keyword", Request{League: "all", Days: 3}, JobTypeAllLeagues, false},
		{"all keyword mixed case", Request{League: "ALL", Days: 3}, JobTypeAllLeagues, false},
		{"league list", Request{Leagues: []string{"nfl", "nba"}, Days: 3}, JobTypeAllLeagues, false},
		{"date range", Request{League: "nfl", StartDate: &start, EndDate: &end}, JobTypeDateRange, false},
		{"days", Request{League: "nfl", Days: 7}, JobTypeDays, false},
		{"season", Request{League: "nba", Season: "2024"}, JobTypeSeason, false},
		{"missing league", Request{Days: 7}, "", true},
		{"nothing to do", Request{League: "nfl"}, "", true},
		{"half range", Request{League: "nfl", StartDate: &start}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.DeriveType()
			if (err != nil) != tt.wantErr {
				t.Fatalf("DeriveType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DeriveType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServiceEnqueueDays(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO backfill_jobs")).
		WithArgs("days", sqlmock.AnyArg(), 3, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), false,
			"queued", sqlmock.AnyArg(), 0, 3).
		WillReturnRows(jobRow("job-1", JobTypeDays, "{NFL}", 3, 3, JobStatusQueued, nil))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backfill_job_events")).
		WithArgs("job-1", "queued", "Job queued", nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job, err := svc.Enqueue(context.Background(), Request{League: "nfl", Days: 3})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if job.JobID != "job-1" || job.JobType != JobTypeDays {
		t.Errorf("unexpected job %+v", job)
	}
	if len(job.Leagues) != 1 || job.Leagues[0] != "NFL" {
		t.Errorf("expected leagues [NFL], got %v", job.Leagues)
	}
	if job.Summary != nil {
		t.Errorf("expected empty summary, got %s", job.Summary)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestServiceEnqueueAllLeaguesUsesConfiguredLeagues(t *testing.T) {
	svc, mock := newMockService(t)

	// two configured leagues x 2 days
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO backfill_jobs")).
		WithArgs("all_leagues", sqlmock.AnyArg(), 2, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), true,
			"queued", sqlmock.AnyArg(), 0, 4).
		WillReturnRows(jobRow("job-2", JobTypeAllLeagues, "{}", 2, 4, JobStatusQueued, nil))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backfill_job_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if _, err := svc.Enqueue(context.Background(), Request{League: "all", Days: 2, DryRun: true}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestServiceEnqueueRejects(t *testing.T) {
	svc, mock := newMockService(t)
	start := time.Date(2025, 10, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  Request
	}{
		{"reversed range", Request{League: "nfl", StartDate: &start, EndDate: &end}},
		{"all leagues without days", Request{League: "all"}},
		{"no league", Request{Days: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Enqueue(context.Background(), tt.req); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("rejected requests must not touch the database: %v", err)
	}
}

func TestServiceGetStatus(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'running'")).
		WillReturnRows(sqlmock.NewRows(jobColumnNames))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs(10).
		WillReturnRows(jobRow("job-1", JobTypeDays, "{NFL}", 3, 3, JobStatusCompleted, []byte(`{"run_id":"r1"}`)))

	status, err := svc.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.ActiveJob != nil {
		t.Errorf("expected no active job, got %+v", status.ActiveJob)
	}
	if len(status.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(status.History))
	}
	if got := string(status.History[0].Summary); got != `{"run_id":"r1"}` {
		t.Errorf("unexpected summary %s", got)
	}
}

func TestBuildSpec(t *testing.T) {
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		job     Job
		wantErr bool
		check   func(t *testing.T, spec JobSpec)
	}{
		{
			name: "days",
			job:  Job{JobType: JobTypeDays, Leagues: []string{"NFL"}, Days: 2},
			check: func(t *testing.T, spec JobSpec) {
				if spec.League != "NFL" || spec.Days != 2 {
					t.Errorf("unexpected spec %+v", spec)
				}
			},
		},
		{
			name: "date range",
			job: Job{
				JobType:   JobTypeDateRange,
				Leagues:   []string{"NBA"},
				StartDate: sqlNullTime(start),
				EndDate:   sqlNullTime(end),
			},
			check: func(t *testing.T, spec JobSpec) {
				if !spec.Start.Equal(start) || !spec.End.Equal(end) {
					t.Errorf("unexpected range %v..%v", spec.Start, spec.End)
				}
			},
		},
		{
			name: "all leagues",
			job:  Job{JobType: JobTypeAllLeagues, Leagues: []string{"NFL", "MLB"}, Days: 1},
			check: func(t *testing.T, spec JobSpec) {
				if len(spec.Leagues) != 2 {
					t.Errorf("expected 2 leagues, got %v", spec.Leagues)
				}
			},
		},
		{name: "missing league", job: Job{JobType: JobTypeDays, Days: 2}, wantErr: true},
		{name: "range without dates", job: Job{JobType: JobTypeDateRange, Leagues: []string{"NBA"}}, wantErr: true},
		{name: "unknown type", job: Job{JobType: "weekly", Leagues: []string{"NBA"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := buildSpec(&tt.job)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildSpec() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, spec)
			}
		})
	}
}

func TestUpperAll(t *testing.T) {
	got := upperAll([]string{" nfl ", "", "nba"})
	if len(got) != 2 || got[0] != "NFL" || got[1] != "NBA" {
		t.Errorf("upperAll() = %v", got)
	}
}

func sqlNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
