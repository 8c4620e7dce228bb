package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fortuna/propline/internal/ingest/sgo"
	"github.com/fortuna/propline/internal/normalize"
	"github.com/fortuna/propline/internal/store"
	"github.com/fortuna/propline/internal/upsert"
)

type fakeFetcher struct {
	mu      sync.Mutex
	noKey   bool
	events  map[string][]sgo.RawEvent
	failing map[string]int
	calls   int
}

func (f *fakeFetcher) HasAPIKey() bool { return !f.noKey }

func (f *fakeFetcher) FetchEvents(_ context.Context, q sgo.Query) ([]sgo.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	key := q.League + "|" + q.From.Format("2006-01-02")
	if status, ok := f.failing[key]; ok {
		return nil, &sgo.UpstreamFetchError{League: q.League, Date: q.From.Format("2006-01-02"), StatusCode: status, Err: errors.New("upstream error")}
	}
	return f.events[key], nil
}

func (f *fakeFetcher) add(league, date string, ev sgo.RawEvent) {
	if f.events == nil {
		f.events = map[string][]sgo.RawEvent{}
	}
	key := league + "|" + date
	f.events[key] = append(f.events[key], ev)
}

type memStore struct {
	mu    sync.Mutex
	props map[string]store.PropLine
	logs  map[string]store.GameLog
}

func newMemStore() *memStore {
	return &memStore{props: map[string]store.PropLine{}, logs: map[string]store.GameLog{}}
}

func (m *memStore) UpsertPropLines(_ context.Context, rows []store.PropLine) ([]store.UpsertedRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.UpsertedRow, 0, len(rows))
	for _, r := range rows {
		_, exists := m.props[r.ConflictKey]
		m.props[r.ConflictKey] = r
		out = append(out, store.UpsertedRow{ConflictKey: r.ConflictKey, Inserted: !exists})
	}
	return out, nil
}

func (m *memStore) UpsertGameLogs(_ context.Context, rows []store.GameLog) ([]store.UpsertedRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.UpsertedRow, 0, len(rows))
	for _, r := range rows {
		_, exists := m.logs[r.ConflictKey]
		m.logs[r.ConflictKey] = r
		out = append(out, store.UpsertedRow{ConflictKey: r.ConflictKey, Inserted: !exists})
	}
	return out, nil
}

type recordingSink struct {
	summaries []*RunSummary
}

func (s *recordingSink) PublishRunSummary(_ context.Context, summary *RunSummary) error {
	s.summaries = append(s.summaries, summary)
	return nil
}

func makeEvent(t *testing.T, eventID, league, date, statID, line, extra string) sgo.RawEvent {
	t.Helper()
	raw := fmt.Sprintf(`{
		"eventID": %q,
		"leagueID": %q,
		"status": {"startsAt": "%sT18:00:00Z"},
		"teams": {
			"home": {"teamID": "HOME_T", "names": {"short": "HOM"}},
			"away": {"teamID": "AWAY_T", "names": {"short": "AWY"}}
		},
		"players": {"JOSH_ALLEN_1_NFL": {"name": "Josh Allen", "teamID": "HOME_T"}},
		"odds": {
			"%s-JOSH_ALLEN_1_NFL-game-ou-over": {"bookOdds": "-110", "bookOverUnder": %q %s}
		}
	}`, eventID, league, date, statID, line, extra)

	var ev sgo.RawEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return ev
}

func newTestRunner(f Fetcher, w Writer, cfg RunnerConfig) *Runner {
	r := NewRunner(f, w, nil, cfg)
	r.now = func() time.Time { return time.Date(2025, 10, 12, 15, 0, 0, 0, time.UTC) }
	return r
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRunMissingAPIKey(t *testing.T) {
	f := &fakeFetcher{noKey: true}
	r := newTestRunner(f, upsert.NewWriter(newMemStore(), newMemStore()), RunnerConfig{})

	summary, err := r.Run(context.Background(), JobSpec{Type: JobTypeDays, League: "NFL", Days: 3}, nil)

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Run() error = %v, want *ConfigurationError", err)
	}
	if summary != nil {
		t.Error("summary returned for a run that never started")
	}
	if f.calls != 0 {
		t.Errorf("upstream called %d times, want 0", f.calls)
	}
}

func TestRunInvalidSpec(t *testing.T) {
	r := newTestRunner(&fakeFetcher{}, upsert.NewWriter(newMemStore(), newMemStore()), RunnerConfig{})

	_, err := r.Run(context.Background(), JobSpec{Type: JobTypeDateRange, League: "NFL"}, nil)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Run() error = %v, want *ConfigurationError", err)
	}
}

func TestRunSkipsFailedDateAndContinues(t *testing.T) {
	f := &fakeFetcher{failing: map[string]int{"NFL|2025-01-04": 500}}
	for d := 1; d <= 10; d++ {
		date := fmt.Sprintf("2025-01-%02d", d)
		f.add("NFL", date, makeEvent(t, "EVT"+date, "NFL", date, "passing_yards", "245.5", ""))
	}
	mem := newMemStore()
	r := newTestRunner(f, upsert.NewWriter(mem, mem), RunnerConfig{ChunkSize: 5})

	summary, err := r.Run(context.Background(), JobSpec{
		Type:   JobTypeDateRange,
		League: "NFL",
		Start:  mustDate("2025-01-01"),
		End:    mustDate("2025-01-10"),
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := summary.Leagues["NFL"]
	if stats.DatesProcessed != 9 || stats.DatesFailed != 1 {
		t.Errorf("dates processed/failed = %d/%d, want 9/1", stats.DatesProcessed, stats.DatesFailed)
	}
	if len(stats.FailedDates) != 1 || stats.FailedDates[0] != "2025-01-04" {
		t.Errorf("FailedDates = %v", stats.FailedDates)
	}
	if summary.State != StateDone || stats.State != StateDone {
		t.Errorf("state = %s / %s, want done", summary.State, stats.State)
	}
	if stats.Upserted != 9 || len(mem.props) != 9 {
		t.Errorf("upserted = %d, stored = %d, want 9", stats.Upserted, len(mem.props))
	}
	if f.calls != 10 {
		t.Errorf("fetch calls = %d, want 10", f.calls)
	}
}

func TestRunReingestUpdatesPrice(t *testing.T) {
	mem := newMemStore()
	writer := upsert.NewWriter(mem, mem)
	spec := JobSpec{Type: JobTypeDateRange, League: "NFL", Start: mustDate("2025-10-12"), End: mustDate("2025-10-12")}

	first := &fakeFetcher{}
	first.add("NFL", "2025-10-12", makeEvent(t, "EVT1", "NFL", "2025-10-12", "passing_yards", "245.5", ""))
	s1, err := newTestRunner(first, writer, RunnerConfig{}).Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	second := &fakeFetcher{}
	second.add("NFL", "2025-10-12", makeEvent(t, "EVT1", "NFL", "2025-10-12", "passing_yards", "246.5", ""))
	s2, err := newTestRunner(second, writer, RunnerConfig{}).Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if s1.Totals.Inserted != 1 || s1.Totals.Updated != 0 {
		t.Errorf("run 1 inserted/updated = %d/%d, want 1/0", s1.Totals.Inserted, s1.Totals.Updated)
	}
	if s2.Totals.Inserted != 0 || s2.Totals.Updated != 1 {
		t.Errorf("run 2 inserted/updated = %d/%d, want 0/1", s2.Totals.Inserted, s2.Totals.Updated)
	}
	if len(mem.props) != 1 {
		t.Fatalf("stored %d rows, want 1", len(mem.props))
	}
	for key, row := range mem.props {
		if row.Line != 246.5 {
			t.Errorf("line = %v, want 246.5", row.Line)
		}
		if key != "JOSH_ALLEN_1_NFL|EVT1|passing_yards|consensus|nfl|2025" {
			t.Errorf("conflict key = %q", key)
		}
	}
}

func TestRunCaseVariantStatIDsCollapse(t *testing.T) {
	mem := newMemStore()
	writer := upsert.NewWriter(mem, mem)
	spec := JobSpec{Type: JobTypeDateRange, League: "MLB", Start: mustDate("2025-06-01"), End: mustDate("2025-06-01")}

	for _, stat := range []string{"batting_homeRuns", "batting_homeruns"} {
		f := &fakeFetcher{}
		f.add("MLB", "2025-06-01", makeEvent(t, "G1", "MLB", "2025-06-01", stat, "0.5", ""))
		if _, err := newTestRunner(f, writer, RunnerConfig{}).Run(context.Background(), spec, nil); err != nil {
			t.Fatalf("Run(%s) error = %v", stat, err)
		}
	}

	if len(mem.props) != 1 {
		t.Fatalf("stored %d rows, want 1", len(mem.props))
	}
	for _, row := range mem.props {
		if row.PropType != "home_runs" {
			t.Errorf("PropType = %q, want home_runs", row.PropType)
		}
	}
}

func TestRunGameLogsFromSettledProps(t *testing.T) {
	mem := newMemStore()
	f := &fakeFetcher{}
	f.add("NFL", "2025-10-12", makeEvent(t, "EVT1", "NFL", "2025-10-12", "passing_yards", "245.5", `, "score": 301`))

	spec := JobSpec{Type: JobTypeDateRange, League: "NFL", Start: mustDate("2025-10-12"), End: mustDate("2025-10-12")}
	summary, err := newTestRunner(f, upsert.NewWriter(mem, mem), RunnerConfig{}).Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Totals.GameLogsUpserted != 1 || len(mem.logs) != 1 {
		t.Fatalf("game logs = %d / %d, want 1", summary.Totals.GameLogsUpserted, len(mem.logs))
	}
	for key, gl := range mem.logs {
		if gl.Value != 301 || key != "gl|JOSH_ALLEN_1_NFL|EVT1|passing_yards|nfl|2025" {
			t.Errorf("game log %q = %+v", key, gl)
		}
	}
}

func TestRunRecordsUnmappedStats(t *testing.T) {
	f := &fakeFetcher{}
	f.add("NFL", "2025-10-12", makeEvent(t, "EVT1", "NFL", "2025-10-12", "xyz_unknown_metric", "3.5", ""))

	spec := JobSpec{Type: JobTypeDateRange, League: "NFL", Start: mustDate("2025-10-12"), End: mustDate("2025-10-12"), DryRun: true}
	summary, err := newTestRunner(f, nil, RunnerConfig{}).Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(summary.Coverage.UnmappedStats) != 1 || summary.Coverage.UnmappedStats[0].Slug != "xyz_unknown_metric" {
		t.Errorf("UnmappedStats = %+v", summary.Coverage.UnmappedStats)
	}
	if len(summary.Coverage.Recommendations) == 0 {
		t.Error("no recommendations for unmapped stats")
	}
	if summary.Totals.Upserted != 0 || summary.Totals.RowsBuilt != 1 {
		t.Errorf("dry run upserted/rows = %d/%d, want 0/1", summary.Totals.Upserted, summary.Totals.RowsBuilt)
	}
}

func TestRunAllLeagues(t *testing.T) {
	f := &fakeFetcher{}
	f.add("NFL", "2025-10-12", makeEvent(t, "N1", "NFL", "2025-10-12", "passing_yards", "245.5", ""))
	f.add("NBA", "2025-10-11", makeEvent(t, "B1", "NBA", "2025-10-11", "points", "27.5", ""))
	mem := newMemStore()
	sink := &recordingSink{}

	r := NewRunner(f, upsert.NewWriter(mem, mem), sink, RunnerConfig{Leagues: []string{"nfl", "NBA", "NFL"}})
	r.now = func() time.Time { return time.Date(2025, 10, 12, 15, 0, 0, 0, time.UTC) }

	summary, err := r.Run(context.Background(), JobSpec{Type: JobTypeAllLeagues, Days: 2}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(summary.Leagues) != 2 {
		t.Fatalf("leagues = %d, want 2", len(summary.Leagues))
	}
	for _, league := range []string{"NFL", "NBA"} {
		stats := summary.Leagues[league]
		if stats.DatesProcessed != 2 || stats.Upserted != 1 {
			t.Errorf("%s processed/upserted = %d/%d, want 2/1", league, stats.DatesProcessed, stats.Upserted)
		}
	}
	if summary.Totals.DatesProcessed != 4 || summary.Totals.Upserted != 2 {
		t.Errorf("totals = %+v", summary.Totals)
	}
	if len(summary.Gaps) != 2 {
		t.Errorf("gaps = %d, want one per league", len(summary.Gaps))
	}
	if len(sink.summaries) != 1 || sink.summaries[0].RunID != summary.RunID {
		t.Error("summary not published")
	}
}

func TestRunIsolatesMalformedEntries(t *testing.T) {
	raw := `{"eventID":"E","leagueID":"NBA","status":{"startsAt":"2025-01-05T00:00:00Z"},
		"players":{"A_B_1_NBA":{"teamID":"T1"}},
		"odds":{
			"points-A_B_1_NBA-game-ou-over":{"bookOverUnder":"20.5"},
			"rebounds-A_B_1_NBA-game-ou-over":{"bookOverUnder":"7.5"},
			"bad-key":{"bookOverUnder":"1.5"},
			"steals-GHOST_1_NBA-game-ou-over":{"bookOverUnder":"1.5"}
		}}`
	var ev sgo.RawEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatal(err)
	}
	f := &fakeFetcher{}
	f.add("NBA", "2025-01-05", ev)
	mem := newMemStore()

	spec := JobSpec{Type: JobTypeDateRange, League: "NBA", Start: mustDate("2025-01-05"), End: mustDate("2025-01-05")}
	summary, err := newTestRunner(f, upsert.NewWriter(mem, mem), RunnerConfig{}).Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Totals.RecordsSeen != 4 || summary.Totals.Invalid != 2 || summary.Totals.Upserted != 2 {
		t.Errorf("seen/invalid/upserted = %d/%d/%d, want 4/2/2",
			summary.Totals.RecordsSeen, summary.Totals.Invalid, summary.Totals.Upserted)
	}
	if summary.Coverage.UnresolvedTotal != 1 {
		t.Errorf("UnresolvedTotal = %d, want 1", summary.Coverage.UnresolvedTotal)
	}
}

func TestJobSpecSlices(t *testing.T) {
	now := time.Date(2025, 10, 12, 23, 30, 0, 0, time.UTC)

	days := JobSpec{Type: JobTypeDays, League: "NFL", Days: 3}.slices(now)
	want := []string{"2025-10-12", "2025-10-11", "2025-10-10"}
	if len(days) != len(want) {
		t.Fatalf("slices = %d, want %d", len(days), len(want))
	}
	for i, s := range days {
		if s.label() != want[i] {
			t.Errorf("slice %d = %s, want %s", i, s.label(), want[i])
		}
	}

	rng := JobSpec{Type: JobTypeDateRange, Start: mustDate("2025-01-03"), End: mustDate("2025-01-01")}.slices(now)
	if len(rng) != 3 || rng[0].label() != "2025-01-01" {
		t.Errorf("range slices = %v", rng)
	}

	season := JobSpec{Type: JobTypeSeason, League: "NBA", Season: "2024"}.slices(now)
	if len(season) != 1 || !season[0].date.IsZero() || season[0].season != "2024" {
		t.Errorf("season slices = %v", season)
	}
}

func TestStateMachine(t *testing.T) {
	m := newStateMachine()
	path := []RunState{StateFetching, StateExtracting, StateUpserting, StateFetching, StateExtracting, StateUpserting, StateReporting, StateDone}
	for _, next := range path {
		if err := m.advance(next); err != nil {
			t.Fatalf("advance(%s) error = %v", next, err)
		}
	}
	if m.state() != StateDone {
		t.Errorf("state = %s, want done", m.state())
	}
	if err := m.advance(StateFetching); err == nil {
		t.Error("advance out of done succeeded, want error")
	}

	m = newStateMachine()
	if err := m.advance(StateUpserting); err == nil {
		t.Error("idle -> upserting succeeded, want error")
	}
}

func TestBuildRowsFansOutPerBook(t *testing.T) {
	over, under := -115, -105
	result := 12.0
	props := []sgo.ExtractedProp{{
		OddID:     "points-A_B_1_NBA-game-ou-over",
		EventID:   "E1",
		League:    "NBA",
		Season:    "2025",
		EventDate: time.Date(2025, 1, 5, 19, 30, 0, 0, time.UTC),
		PlayerID:  "A_B_1_NBA",
		PropType:  "points",
		Line:      20.5,
		Books: []sgo.BookLine{
			{Sportsbook: "draftkings", Line: 21.5, OverOdds: &over, UnderOdds: &under, Available: true},
			{Sportsbook: "consensus", Line: 20.5},
		},
		Result: &result,
	}}

	lines, logs := buildRows(props, "", time.Time{})
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want consensus + draftkings", len(lines))
	}
	if lines[0].Sportsbook != "consensus" || lines[1].Sportsbook != "draftkings" {
		t.Errorf("sportsbooks = %s, %s", lines[0].Sportsbook, lines[1].Sportsbook)
	}
	if lines[0].ConflictKey == lines[1].ConflictKey {
		t.Error("books share a conflict key")
	}
	if lines[1].Line != 21.5 || !lines[1].OverOdds.Valid || lines[1].OverOdds.Int32 != -115 {
		t.Errorf("draftkings row = %+v", lines[1])
	}
	if lines[0].League != "nba" || !lines[0].EventDate.Equal(time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("consensus row = %+v", lines[0])
	}
	if len(logs) != 1 || logs[0].Value != 12 {
		t.Errorf("logs = %+v", logs)
	}
}

func TestBuildRowsKeepsPitchingAndBattingWalksApart(t *testing.T) {
	base := sgo.ExtractedProp{
		EventID:   "E1",
		League:    "MLB",
		Season:    "2025",
		EventDate: time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC),
		PlayerID:  "SHOHEI_OHTANI_1_MLB",
		Line:      0.5,
	}
	pitching, batting := base, base
	pitching.StatID, pitching.PropType = "pitching_basesOnBalls", normalize.NormalizePropType("pitching_basesOnBalls")
	batting.StatID, batting.PropType = "batting_basesOnBalls", normalize.NormalizePropType("batting_basesOnBalls")

	lines, _ := buildRows([]sgo.ExtractedProp{pitching, batting}, "", time.Time{})
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].PropType != "walks_allowed" || lines[1].PropType != "walks" {
		t.Errorf("prop types = %s, %s", lines[0].PropType, lines[1].PropType)
	}
	if lines[0].ConflictKey == lines[1].ConflictKey {
		t.Fatalf("distinct facts collide on %q", lines[0].ConflictKey)
	}
	for _, l := range lines {
		if !strings.Contains(l.ConflictKey, "|"+l.PropType+"|") {
			t.Errorf("key %q disagrees with prop_type %q", l.ConflictKey, l.PropType)
		}
	}
}
