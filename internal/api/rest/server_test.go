package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fortuna/propline/internal/backfill"
	"github.com/fortuna/propline/internal/store"
)

type fakeIngest struct {
	got    backfill.Request
	err    error
	status *backfill.StatusSummary
}

func (f *fakeIngest) Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &backfill.Job{
		JobID:         "job-1",
		JobType:       backfill.JobTypeDays,
		Leagues:       []string{"NFL"},
		Days:          req.Days,
		Status:        backfill.JobStatusQueued,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
	}, nil
}

func (f *fakeIngest) GetStatus(ctx context.Context) (*backfill.StatusSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

type fakeCoverage struct {
	league string
	since  time.Time
	counts []store.PropTypeCount
	err    error
}

func (f *fakeCoverage) PropTypeCounts(ctx context.Context, league string, since time.Time) ([]store.PropTypeCount, error) {
	f.league, f.since = league, since
	return f.counts, f.err
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, payload
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantStatus int
		wantState  string
	}{
		{
			name:       "all healthy",
			checks:     map[string]HealthChecker{"postgres": checkFunc(func(context.Context) error { return nil })},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "redis down",
			checks: map[string]HealthChecker{
				"postgres": checkFunc(func(context.Context) error { return nil }),
				"redis":    checkFunc(func(context.Context) error { return errors.New("connection refused") }),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer("0", Dependencies{Checks: tt.checks})
			rec, payload := do(t, srv.Handler(), "GET", "/health", "")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if payload["status"] != tt.wantState {
				t.Errorf("state = %v, want %s", payload["status"], tt.wantState)
			}
		})
	}
}

func TestIngestRequest(t *testing.T) {
	svc := &fakeIngest{}
	srv := NewServer("0", Dependencies{Ingest: svc})

	rec, payload := do(t, srv.Handler(), "POST", "/api/v1/ingest",
		`{"league":"nfl","start_date":"2025-10-01","end_date":"2025-10-05","dry_run":true}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.got.League != "nfl" || !svc.got.DryRun {
		t.Errorf("unexpected request %+v", svc.got)
	}
	if svc.got.StartDate == nil || svc.got.StartDate.Format("2006-01-02") != "2025-10-01" {
		t.Errorf("unexpected start date %v", svc.got.StartDate)
	}
	job, ok := payload["job"].(map[string]interface{})
	if !ok || job["job_id"] != "job-1" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestIngestRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{"malformed body", `{"league":`, nil},
		{"bad date", `{"league":"nfl","start_date":"10/01/2025","end_date":"2025-10-05"}`, nil},
		{"service rejects", `{"league":"nfl"}`, errors.New("unable to determine job type from request")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer("0", Dependencies{Ingest: &fakeIngest{err: tt.err}})
			rec, payload := do(t, srv.Handler(), "POST", "/api/v1/ingest", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if payload["error"] == nil {
				t.Errorf("expected error message, got %v", payload)
			}
		})
	}
}

func TestIngestStatus(t *testing.T) {
	active := &backfill.Job{
		JobID:         "job-2",
		Status:        backfill.JobStatusRunning,
		StatusMessage: sql.NullString{String: "NFL 2025-10-01", Valid: true},
	}
	done := &backfill.Job{JobID: "job-1", Status: backfill.JobStatusCompleted, Summary: json.RawMessage(`{"run_id":"r1"}`)}
	svc := &fakeIngest{status: &backfill.StatusSummary{ActiveJob: active, History: []*backfill.Job{active, done}}}
	srv := NewServer("0", Dependencies{Ingest: svc})

	rec, payload := do(t, srv.Handler(), "GET", "/api/v1/ingest/status", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["status"] != "running" || payload["message"] != "NFL 2025-10-01" {
		t.Errorf("unexpected payload %v", payload)
	}
	history, _ := payload["history"].([]interface{})
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %v", payload["history"])
	}
	last := history[1].(map[string]interface{})
	summary, _ := last["summary"].(map[string]interface{})
	if summary["run_id"] != "r1" {
		t.Errorf("expected embedded summary, got %v", last["summary"])
	}
}

func TestIngestNotConfigured(t *testing.T) {
	srv := NewServer("0", Dependencies{})
	rec, _ := do(t, srv.Handler(), "GET", "/api/v1/ingest/status", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestGetCoverage(t *testing.T) {
	cov := &fakeCoverage{counts: []store.PropTypeCount{
		{PropType: "points", Rows: 120},
		{PropType: "rebounds", Rows: 80},
	}}
	srv := NewServer("0", Dependencies{Coverage: cov})
	h := srv.Handler()

	rec, payload := do(t, h, "GET", "/api/v1/coverage/nba?days=3", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if cov.league != "NBA" {
		t.Errorf("expected uppercased league, got %q", cov.league)
	}
	if payload["rows"] != float64(200) {
		t.Errorf("rows = %v, want 200", payload["rows"])
	}
	gaps, _ := payload["gaps"].(map[string]interface{})
	if gaps["sport"] != "basketball" {
		t.Errorf("unexpected gaps %v", gaps)
	}
	missing, _ := gaps["missing"].([]interface{})
	if len(missing) == 0 {
		t.Error("expected missing prop types")
	}
}

func TestGetCoverageErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		cov    *fakeCoverage
		want   int
	}{
		{"unknown league", "/api/v1/coverage/xyz", &fakeCoverage{}, http.StatusNotFound},
		{"bad days", "/api/v1/coverage/nfl?days=0", &fakeCoverage{}, http.StatusBadRequest},
		{"query failure", "/api/v1/coverage/nfl", &fakeCoverage{err: errors.New("db down")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer("0", Dependencies{Coverage: tt.cov})
			rec, _ := do(t, srv.Handler(), "GET", tt.target, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCoverageWindow(t *testing.T) {
	cov := &fakeCoverage{}
	h := NewHandler(cov, nil)
	h.now = func() time.Time { return time.Date(2025, 10, 12, 15, 0, 0, 0, time.UTC) }

	srv := NewServer("0", Dependencies{})
	srv.router.HandleFunc("/cov/{league}", h.GetCoverage)

	rec, payload := do(t, srv.Handler(), "GET", "/cov/nfl?days=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["since"] != "2025-10-06" {
		t.Errorf("since = %v, want 2025-10-06", payload["since"])
	}
}

func TestNormalize(t *testing.T) {
	srv := NewServer("0", Dependencies{})

	rec, payload := do(t, srv.Handler(), "GET", "/api/v1/normalize?stat=batting_homeRuns&name=Jos%C3%A9%20Ram%C3%ADrez", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	stat := payload["stat"].(map[string]interface{})
	if stat["prop_type"] != "home_runs" || stat["matched"] != true {
		t.Errorf("unexpected stat mapping %v", stat)
	}
	name := payload["name"].(map[string]interface{})
	if name["normalized"] != "jose ramirez" {
		t.Errorf("unexpected name %v", name)
	}
}

func TestNormalizeRequiresInput(t *testing.T) {
	srv := NewServer("0", Dependencies{})

	for _, target := range []string{"/api/v1/normalize", "/api/v1/normalize?team=Buffalo%20Bills"} {
		rec, _ := do(t, srv.Handler(), "GET", target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec, payload := do(t, h, "GET", "/", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if payload["details"] != "boom" {
		t.Errorf("unexpected payload %v", payload)
	}
}
