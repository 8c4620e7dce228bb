package backfill

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/propline/internal/logging"
	"github.com/fortuna/propline/internal/store"
)

// Request represents an ingestion invocation request.
type Request struct {
	League    string
	Leagues   []string
	Days      int
	StartDate *time.Time
	EndDate   *time.Time
	Season    string
	DryRun    bool
}

// DeriveType infers the job type based on populated fields. League "all" selects every league.
func (r Request) DeriveType() (JobType, error) {
	if strings.EqualFold(r.League, "all") || (r.League == "" && len(r.Leagues) > 0) {
		return JobTypeAllLeagues, nil
	}
	if r.League == "" {
		return "", fmt.Errorf("league is required")
	}
	if r.StartDate != nil && r.EndDate != nil {
		return JobTypeDateRange, nil
	}
	if r.Days > 0 {
		return JobTypeDays, nil
	}
	if r.Season != "" {
		return JobTypeSeason, nil
	}
	return "", fmt.Errorf("unable to determine job type from request")
}

// Service coordinates job persistence, execution, and status reporting.
type Service struct {
	repo   *Repository
	runner *Runner

	historyLimit int
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *logrus.Entry
}

// NewService constructs a Service. Call Start to launch workers.
func NewService(db *store.Database, runner *Runner) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		repo:         NewRepository(db),
		runner:       runner,
		historyLimit: 10,
		pollInterval: 3 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		log:          logging.For("backfill"),
	}
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if err := s.repo.ResetStuckJobs(s.ctx); err != nil {
		s.log.WithError(err).Warn("⚠️  failed to reset jobs")
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops workers and waits for completion.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue creates a new job from the provided request.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Job, error) {
	jobType, err := req.DeriveType()
	if err != nil {
		return nil, err
	}

	job := &Job{
		JobType:       jobType,
		Days:          req.Days,
		DryRun:        req.DryRun,
		Season:        sql.NullString{String: req.Season, Valid: req.Season != ""},
		Status:        JobStatusQueued,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
	}

	switch jobType {
	case JobTypeAllLeagues:
		if req.Days <= 0 {
			return nil, fmt.Errorf("all leagues job requires days")
		}
		job.Leagues = upperAll(req.Leagues)
		leagues := len(job.Leagues)
		if leagues == 0 && s.runner != nil {
			leagues = len(s.runner.cfg.Leagues)
		}
		job.ProgressTotal = req.Days * leagues
	case JobTypeDays:
		job.Leagues = upperAll([]string{req.League})
		job.ProgressTotal = req.Days
	case JobTypeDateRange:
		start, end := truncateDate(*req.StartDate), truncateDate(*req.EndDate)
		if end.Before(start) {
			return nil, fmt.Errorf("end_date before start_date")
		}
		job.Leagues = upperAll([]string{req.League})
		job.StartDate = sql.NullTime{Time: start, Valid: true}
		job.EndDate = sql.NullTime{Time: end, Valid: true}
		job.ProgressTotal = len(enumerateDates(start, end))
	case JobTypeSeason:
		job.Leagues = upperAll([]string{req.League})
		job.ProgressTotal = 1
	}

	stored, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}

	_ = s.repo.AppendEvent(ctx, stored.JobID, "queued", "Job queued", nil, nil)

	return stored, nil
}

// GetStatus returns the currently running job plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListRecentJobs(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveJob: active,
		History:   history,
	}, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			job, err := s.repo.MarkNextJobRunning(s.ctx)
			if err != nil {
				s.log.WithError(err).Warn("⚠️  claim job error")
				time.Sleep(time.Second)
				continue
			}
			if job == nil {
				select {
				case <-s.ctx.Done():
					return
				case <-ticker.C:
					continue
				}
			}

			s.executeJob(job)
		}
	}
}

func (s *Service) executeJob(job *Job) {
	log := s.log.WithFields(logrus.Fields{"job_id": job.JobID, "job_type": job.JobType})

	spec, err := buildSpec(job)
	if err != nil {
		log.WithError(err).Warn("⚠️  invalid job spec")
		_ = s.repo.UpdateStatus(s.ctx, job.JobID, JobStatusFailed, "Invalid job specification", err)
		return
	}

	reporter := &jobReporter{
		ctx:   s.ctx,
		repo:  s.repo,
		jobID: job.JobID,
		total: job.ProgressTotal,
	}

	summary, err := s.runner.Run(s.ctx, spec, reporter)
	if err != nil {
		log.WithError(err).Error("job failed")
		_ = s.repo.UpdateStatus(s.ctx, job.JobID, JobStatusFailed, "Job failed", err)
		return
	}

	body, err := json.Marshal(summary)
	if err != nil {
		body = []byte("{}")
	}
	if err := s.repo.CompleteJob(s.ctx, job.JobID, body); err != nil {
		log.WithError(err).Warn("⚠️  failed to record job completion")
		return
	}
	log.WithField("run_id", summary.RunID).Info("✓ job completed")
}

func buildSpec(job *Job) (JobSpec, error) {
	spec := JobSpec{
		Type:   job.JobType,
		Days:   job.Days,
		Season: job.Season.String,
		DryRun: job.DryRun,
	}

	switch job.JobType {
	case JobTypeAllLeagues:
		spec.Leagues = job.Leagues
	case JobTypeDays, JobTypeSeason:
		if len(job.Leagues) == 0 {
			return spec, fmt.Errorf("job missing league")
		}
		spec.League = job.Leagues[0]
	case JobTypeDateRange:
		if len(job.Leagues) == 0 {
			return spec, fmt.Errorf("job missing league")
		}
		if !job.StartDate.Valid || !job.EndDate.Valid {
			return spec, fmt.Errorf("job missing start/end dates")
		}
		spec.League = job.Leagues[0]
		spec.Start = job.StartDate.Time
		spec.End = job.EndDate.Time
	default:
		return spec, fmt.Errorf("unknown job type %s", job.JobType)
	}

	return spec, spec.Validate()
}

type jobReporter struct {
	ctx   context.Context
	repo  *Repository
	jobID string
	total int
}

func (r *jobReporter) OnJobStart(spec JobSpec) {
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, 0, r.total, "Job starting")
}

func (r *jobReporter) OnDateStart(league string, date time.Time, index int, total int) {}

func (r *jobReporter) OnDateFailed(league string, date time.Time, err error) {
	_ = r.repo.AppendEvent(r.ctx, r.jobID, "date_failed", fmt.Sprintf("%s %s: %v", league, date.Format("2006-01-02"), err), nil, nil)
}

func (r *jobReporter) OnProgress(message string, current int, total int) {
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, current, valueOr(total, r.total), message)
}

func (r *jobReporter) OnJobComplete(summary *RunSummary) {
	msg := fmt.Sprintf("Run %s complete: %d upserted, %d failed dates", summary.RunID, summary.Totals.Upserted, summary.Totals.DatesFailed)
	_ = r.repo.AppendEvent(r.ctx, r.jobID, "complete", msg, nil, nil)
}

func (r *jobReporter) OnJobError(err error) {
	_ = r.repo.AppendEvent(r.ctx, r.jobID, "error", err.Error(), nil, nil)
}

func valueOr(val, fallback int) int {
	if val > 0 {
		return val
	}
	return fallback
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
