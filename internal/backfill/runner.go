package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fortuna/propline/internal/coverage"
	"github.com/fortuna/propline/internal/ingest/sgo"
	"github.com/fortuna/propline/internal/logging"
	"github.com/fortuna/propline/internal/store"
	"github.com/fortuna/propline/internal/upsert"
)

const (
	DefaultChunkSize          = 5
	DefaultMinRequestInterval = 1200 * time.Millisecond
	DefaultFetchTimeout       = 20 * time.Second
	DefaultLeagueConcurrency  = 2
)

// Fetcher returns the upstream events for one request window.
type Fetcher interface {
	FetchEvents(ctx context.Context, q sgo.Query) ([]sgo.RawEvent, error)
	HasAPIKey() bool
}

// Writer persists normalized rows.
type Writer interface {
	UpsertProps(ctx context.Context, rows []store.PropLine) upsert.Result
	UpsertGameLogs(ctx context.Context, rows []store.GameLog) upsert.Result
}

// SummarySink receives finished run summaries. Failures are logged and never fail the run.
type SummarySink interface {
	PublishRunSummary(ctx context.Context, summary *RunSummary) error
}

// RunnerConfig tunes chunking, pacing and fan-out. Zero values take defaults, except
// MinRequestInterval where zero disables pacing.
type RunnerConfig struct {
	Leagues            []string
	ChunkSize          int
	MinRequestInterval time.Duration
	FetchTimeout       time.Duration
	LeagueConcurrency  int
	DefaultSportsbook  string
}

// Runner executes ingestion specs against the upstream odds API.
type Runner struct {
	fetcher Fetcher
	writer  Writer
	sink    SummarySink
	cfg     RunnerConfig

	limiter *rate.Limiter
	now     func() time.Time
	log     *logrus.Entry
}

// NewRunner constructs a runner. sink may be nil.
func NewRunner(fetcher Fetcher, writer Writer, sink SummarySink, cfg RunnerConfig) *Runner {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MinRequestInterval < 0 {
		cfg.MinRequestInterval = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.LeagueConcurrency <= 0 {
		cfg.LeagueConcurrency = DefaultLeagueConcurrency
	}
	if cfg.DefaultSportsbook == "" {
		cfg.DefaultSportsbook = DefaultSportsbook
	}

	limit := rate.Inf
	if cfg.MinRequestInterval > 0 {
		limit = rate.Every(cfg.MinRequestInterval)
	}

	return &Runner{
		fetcher: fetcher,
		writer:  writer,
		sink:    sink,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		log:     logging.For("runner"),
	}
}

// Run executes spec and always returns a summary unless the run cannot start. A missing API key or
// an incomplete spec yields *ConfigurationError before any upstream call.
func (r *Runner) Run(ctx context.Context, spec JobSpec, reporter Reporter) (*RunSummary, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}

	if r.fetcher == nil || !r.fetcher.HasAPIKey() {
		err := &ConfigurationError{Setting: "SGO_API_KEY", Reason: "no API key configured; set SGO_API_KEY and retry"}
		reporter.OnJobError(err)
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		cfgErr := &ConfigurationError{Setting: "job spec", Reason: err.Error()}
		reporter.OnJobError(cfgErr)
		return nil, cfgErr
	}
	if r.writer == nil && !spec.DryRun {
		err := &ConfigurationError{Setting: "storage", Reason: "no writer configured; use dry-run or set DATABASE_URL"}
		reporter.OnJobError(err)
		return nil, err
	}

	leagues := spec.leagues(r.cfg.Leagues)
	if len(leagues) == 0 {
		err := &ConfigurationError{Setting: "INGEST_LEAGUES", Reason: "no leagues to ingest"}
		reporter.OnJobError(err)
		return nil, err
	}

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Mode:      spec.Type,
		DryRun:    spec.DryRun,
		Leagues:   make(map[string]*LeagueStats, len(leagues)),
		StartedAt: r.now(),
		State:     StateIdle,
	}
	for _, league := range leagues {
		summary.Leagues[league] = &LeagueStats{State: StateIdle, propTypes: map[string]bool{}}
	}

	log := r.log.WithFields(logrus.Fields{"run_id": summary.RunID, "mode": spec.Type})
	log.WithField("leagues", strings.Join(leagues, ",")).Info("starting ingestion run")
	reporter.OnJobStart(spec)

	slices := spec.slices(r.now())
	prog := &progress{total: len(slices) * len(leagues), reporter: reporter}
	reports := make(map[string]*coverage.Report, len(leagues))
	for _, league := range leagues {
		reports[league] = coverage.NewReport()
	}

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.LeagueConcurrency)
	for _, league := range leagues {
		g.Go(func() error {
			r.runLeague(ctx, league, spec, slices, summary.Leagues[league], reports[league], reporter, prog)
			return nil
		})
	}
	_ = g.Wait()

	summary.State = StateReporting
	aggregate := coverage.NewReport()
	for _, league := range leagues {
		stats := summary.Leagues[league]
		summary.Totals.add(stats)
		aggregate.Merge(reports[league])
		summary.Gaps = append(summary.Gaps, coverage.AnalyzeGaps(league, sortedKeys(stats.propTypes)))
	}
	summary.Coverage = aggregate.Summary()
	summary.Duration = time.Since(summary.StartedAt)
	summary.State = StateDone
	summary.Totals.State = StateDone

	if r.sink != nil {
		if err := r.sink.PublishRunSummary(context.WithoutCancel(ctx), summary); err != nil {
			log.WithError(err).Warn("⚠️  failed to publish run summary")
		}
	}

	log.WithFields(logrus.Fields{
		"dates_processed": summary.Totals.DatesProcessed,
		"dates_failed":    summary.Totals.DatesFailed,
		"records_seen":    summary.Totals.RecordsSeen,
		"upserted":        summary.Totals.Upserted,
		"invalid":         summary.Totals.Invalid,
		"errors":          summary.Totals.Errors,
		"duration":        summary.Duration.Round(time.Millisecond),
	}).Info("✓ ingestion run complete")
	for _, rec := range summary.Coverage.Recommendations {
		log.Warn("⚠️  " + rec)
	}

	reporter.OnJobComplete(summary)
	return summary, nil
}

type fetchResult struct {
	slice  slice
	events []sgo.RawEvent
	err    error
}

// runLeague walks the slices in chunks. Chunks run strictly one after another.
func (r *Runner) runLeague(
	ctx context.Context,
	league string,
	spec JobSpec,
	slices []slice,
	stats *LeagueStats,
	report *coverage.Report,
	reporter Reporter,
	prog *progress,
) {
	log := r.log.WithField("league", league)
	sm := newStateMachine()
	advance := func(next RunState) {
		if err := sm.advance(next); err != nil {
			log.WithError(err).Warn("⚠️  unexpected state change")
		}
		stats.State = sm.state()
	}

	for start := 0; start < len(slices); start += r.cfg.ChunkSize {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("⚠️  run interrupted, stopping after last chunk")
			break
		}
		chunk := slices[start:min(start+r.cfg.ChunkSize, len(slices))]

		advance(StateFetching)
		for i, s := range chunk {
			reporter.OnDateStart(league, s.date, start+i, len(slices))
		}
		results := r.fetchChunk(ctx, league, chunk)

		advance(StateExtracting)
		var props []sgo.ExtractedProp
		for _, res := range results {
			if res.err != nil {
				stats.DatesFailed++
				stats.FailedDates = append(stats.FailedDates, res.slice.label())
				log.WithError(res.err).WithField("date", res.slice.label()).Warn("⚠️  fetch failed, skipping date")
				reporter.OnDateFailed(league, res.slice.date, res.err)
				prog.step(fmt.Sprintf("%s %s failed", league, res.slice.label()))
				continue
			}
			stats.DatesProcessed++
			stats.EventsSeen += len(res.events)
			props = append(props, r.extract(league, res.events, stats, report)...)
			prog.step(fmt.Sprintf("%s %s fetched", league, res.slice.label()))
		}

		advance(StateUpserting)
		fallback := chunk[0].date
		lines, logs := buildRows(props, r.cfg.DefaultSportsbook, fallback)
		stats.RowsBuilt += len(lines)
		if !spec.DryRun {
			r.write(ctx, lines, logs, stats, log)
		}
	}

	advance(StateReporting)
	advance(StateDone)
}

func (r *Runner) fetchChunk(ctx context.Context, league string, chunk []slice) []fetchResult {
	results := make([]fetchResult, len(chunk))

	// Failures are per slice; the group never cancels siblings.
	var g errgroup.Group
	for i, s := range chunk {
		g.Go(func() error {
			events, err := r.fetch(ctx, league, s)
			results[i] = fetchResult{slice: s, events: events, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Runner) fetch(ctx context.Context, league string, s slice) ([]sgo.RawEvent, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, &sgo.UpstreamFetchError{League: league, Date: s.label(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	q := sgo.Query{League: league, Season: s.season}
	if !s.date.IsZero() {
		q.From, q.To = s.date, s.date
	}

	events, err := r.fetcher.FetchEvents(ctx, q)
	if err != nil {
		var ufe *sgo.UpstreamFetchError
		if !errors.As(err, &ufe) {
			err = &sgo.UpstreamFetchError{League: league, Date: s.label(), Err: err}
		}
		return nil, err
	}
	return events, nil
}

// extract runs every event through the extractor and routes skips and fallbacks to the report.
func (r *Runner) extract(league string, events []sgo.RawEvent, stats *LeagueStats, report *coverage.Report) []sgo.ExtractedProp {
	var props []sgo.ExtractedProp
	for _, ev := range events {
		if ev.LeagueID == "" {
			ev.LeagueID = league
		}
		for prop, err := range sgo.ExtractProps(ev) {
			stats.RecordsSeen++
			if err != nil {
				stats.Invalid++
				var mre *sgo.MalformedRecordError
				if errors.As(err, &mre) && mre.Reason == sgo.ReasonUnknownPlayer {
					report.RecordUnresolvedPlayer(league, mre.PlayerID, mre.OddID)
				}
				continue
			}
			if !prop.PropTypeMatched {
				report.RecordUnmappedStat(league, prop.StatID, prop.PropType, prop.OddID)
			}
			stats.propTypes[prop.PropType] = true
			props = append(props, prop)
		}
	}
	stats.PropsExtracted += len(props)
	return props
}

func (r *Runner) write(ctx context.Context, lines []store.PropLine, logs []store.GameLog, stats *LeagueStats, log *logrus.Entry) {
	propRes := r.writer.UpsertProps(ctx, lines)
	stats.Inserted += propRes.Inserted
	stats.Updated += propRes.Updated
	stats.Upserted += propRes.Upserted()
	stats.Skipped += propRes.Skipped
	stats.Duplicates += propRes.Duplicates
	stats.Errors += len(propRes.Errors)

	logRes := r.writer.UpsertGameLogs(ctx, logs)
	stats.GameLogsUpserted += logRes.Upserted()
	stats.Skipped += logRes.Skipped
	stats.Errors += len(logRes.Errors)

	for _, err := range append(propRes.Errors, logRes.Errors...) {
		log.WithError(err).Warn("⚠️  upsert error")
	}
}

type progress struct {
	current  atomic.Int64
	total    int
	reporter Reporter
}

func (p *progress) step(msg string) {
	cur := p.current.Add(1)
	p.reporter.OnProgress(msg, int(cur), p.total)
}

type nopReporter struct{}

func (nopReporter) OnJobStart(JobSpec)                      {}
func (nopReporter) OnDateStart(string, time.Time, int, int) {}
func (nopReporter) OnDateFailed(string, time.Time, error)   {}
func (nopReporter) OnProgress(string, int, int)             {}
func (nopReporter) OnJobComplete(*RunSummary)               {}
func (nopReporter) OnJobError(error)                        {}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func enumerateDates(start, end time.Time) []time.Time {
	if end.Before(start) {
		start, end = end, start
	}

	var dates []time.Time
	current := truncateDate(start)
	final := truncateDate(end)

	for !current.After(final) {
		dates = append(dates, current)
		current = current.AddDate(0, 0, 1)
	}

	return dates
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
