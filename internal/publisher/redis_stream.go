package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fortuna/propline/internal/backfill"
)

const (
	// RunsStream carries one entry per finished ingestion run.
	RunsStream = "propline.ingest.runs"
	// CoverageStream carries one entry per run that hit unmapped stats or unresolved players.
	CoverageStream = "propline.ingest.coverage"

	defaultMaxLen = 1000
)

// RedisStreamPublisher publishes run summaries to Redis streams
type RedisStreamPublisher struct {
	client *redis.Client
	maxLen int64
	now    func() time.Time
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client
func NewRedisStreamPublisher(client *redis.Client) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		maxLen: defaultMaxLen,
		now:    time.Now,
	}
}

// PublishRunSummary appends the summary to RunsStream, and its coverage report to CoverageStream
// when the report is not empty.
func (rsp *RedisStreamPublisher) PublishRunSummary(ctx context.Context, summary *backfill.RunSummary) error {
	if summary == nil {
		return nil
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	err = rsp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: RunsStream,
		MaxLen: rsp.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"run_id":    summary.RunID,
			"mode":      string(summary.Mode),
			"dry_run":   summary.DryRun,
			"upserted":  summary.Totals.Upserted,
			"failed":    summary.Totals.DatesFailed,
			"data":      string(data),
			"timestamp": rsp.now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}

	if summary.Coverage.Empty() {
		return nil
	}

	report, err := json.Marshal(summary.Coverage)
	if err != nil {
		return fmt.Errorf("marshal coverage: %w", err)
	}

	err = rsp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: CoverageStream,
		MaxLen: rsp.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"run_id":     summary.RunID,
			"unmapped":   summary.Coverage.UnmappedTotal,
			"unresolved": summary.Coverage.UnresolvedTotal,
			"data":       string(report),
			"timestamp":  rsp.now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish coverage: %w", err)
	}
	return nil
}
