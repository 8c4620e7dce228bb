package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/propline/internal/backfill"
	"github.com/fortuna/propline/internal/logging"
)

// JobRunner executes one ingestion run.
type JobRunner interface {
	Run(ctx context.Context, spec backfill.JobSpec, reporter backfill.Reporter) (*backfill.RunSummary, error)
}

// Orchestrator runs the all-leagues ingestion on a cron schedule
type Orchestrator struct {
	runner JobRunner
	config *Config
	cron   *cron.Cron
	// job is tick behind Recover and SkipIfStillRunning. Scheduled and startup runs share it, so
	// they never overlap.
	job cron.Job
	log *logrus.Entry

	mu      sync.Mutex
	last    *backfill.RunSummary
	lastErr error
	sleep   func(ctx context.Context, d time.Duration) bool
}

// Config holds scheduler configuration
type Config struct {
	Spec       string        // cron expression, default every 4 hours
	Timezone   string        // Default: America/New_York
	Days       int           // look-back window per run
	Leagues    []string      // empty means the runner's configured leagues
	RunOnStart bool          // also run immediately after Start
	RunTimeout time.Duration // Default: 30m
	MaxRetries int           // Default: 3
	RetryDelay time.Duration // Default: 30s
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		Spec:       "0 */4 * * *",
		Timezone:   "America/New_York",
		Days:       3,
		RunTimeout: 30 * time.Minute,
		MaxRetries: 3,
		RetryDelay: 30 * time.Second,
	}
}

// NewOrchestrator validates the schedule and builds an orchestrator. Call Start to begin.
func NewOrchestrator(runner JobRunner, config *Config) (*Orchestrator, error) {
	if runner == nil {
		return nil, errors.New("scheduler requires a runner")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Spec == "" {
		config.Spec = defaults.Spec
	}
	if config.Days <= 0 {
		config.Days = defaults.Days
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = defaults.RunTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}

	loc := time.UTC
	if config.Timezone != "" {
		l, err := time.LoadLocation(config.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", config.Timezone, err)
		}
		loc = l
	}

	log := logging.For("scheduler")
	cronLog := cron.PrintfLogger(logging.Logger())

	o := &Orchestrator{
		runner: runner,
		config: config,
		log:    log,
		cron:   cron.New(cron.WithLocation(loc)),
		sleep:  sleepCtx,
	}
	o.job = cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)).Then(cron.FuncJob(o.tick))

	if _, err := o.cron.AddJob(config.Spec, o.job); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", config.Spec, err)
	}
	return o, nil
}

// Start begins scheduled runs. It does not block.
func (o *Orchestrator) Start() {
	o.log.WithFields(logrus.Fields{
		"schedule": o.config.Spec,
		"timezone": o.config.Timezone,
		"days":     o.config.Days,
	}).Info("→ Ingestion scheduler started")

	o.cron.Start()

	if o.config.RunOnStart {
		go o.job.Run()
	}
}

// Stop halts the schedule and waits up to ctx for a running ingestion to finish.
func (o *Orchestrator) Stop(ctx context.Context) error {
	done := o.cron.Stop()
	select {
	case <-done.Done():
		o.log.Info("→ Ingestion scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next scheduled run time.
func (o *Orchestrator) Next() time.Time {
	entries := o.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// LastRun returns the most recent summary and error.
func (o *Orchestrator) LastRun() (*backfill.RunSummary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last, o.lastErr
}

func (o *Orchestrator) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.RunTimeout)
	defer cancel()

	summary, err := o.RunOnce(ctx)

	o.mu.Lock()
	o.last, o.lastErr = summary, err
	o.mu.Unlock()
}

// RunOnce performs one all-leagues ingestion with retries. Configuration errors are not retried.
// A run in which every date failed counts as a failure and is retried.
func (o *Orchestrator) RunOnce(ctx context.Context) (*backfill.RunSummary, error) {
	spec := backfill.JobSpec{
		Type:    backfill.JobTypeAllLeagues,
		Leagues: o.config.Leagues,
		Days:    o.config.Days,
	}

	var (
		summary *backfill.RunSummary
		err     error
	)

	for attempt := 1; attempt <= o.config.MaxRetries; attempt++ {
		summary, err = o.runner.Run(ctx, spec, nil)
		if err == nil && !outage(summary) {
			o.log.WithFields(logrus.Fields{
				"run_id":   summary.RunID,
				"upserted": summary.Totals.Upserted,
				"failed":   summary.Totals.DatesFailed,
			}).Info("✓ Scheduled ingestion complete")
			return summary, nil
		}

		var cfgErr *backfill.ConfigurationError
		if errors.As(err, &cfgErr) {
			o.log.WithError(err).Error("❌ Scheduled ingestion misconfigured")
			return nil, err
		}
		if err == nil {
			err = fmt.Errorf("run %s: all %d dates failed", summary.RunID, summary.Totals.DatesFailed)
		}

		o.log.WithError(err).Warnf("⚠️  Ingestion attempt %d/%d failed", attempt, o.config.MaxRetries)

		if attempt < o.config.MaxRetries {
			o.log.Infof("  Retrying in %v...", o.config.RetryDelay)
			if !o.sleep(ctx, o.config.RetryDelay) {
				return summary, ctx.Err()
			}
		}
	}

	o.log.WithError(err).Errorf("❌ All %d ingestion attempts failed", o.config.MaxRetries)
	return summary, err
}

func outage(s *backfill.RunSummary) bool {
	return s != nil && s.Totals.DatesProcessed == 0 && s.Totals.DatesFailed > 0
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
