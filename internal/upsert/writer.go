package upsert

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/propline/internal/logging"
	"github.com/fortuna/propline/internal/store"
)

const (
	DefaultPropBatchSize    = 250
	DefaultGameLogBatchSize = 100
)

// PropStore persists prop lines. Each call must apply all rows or none.
type PropStore interface {
	UpsertPropLines(ctx context.Context, rows []store.PropLine) ([]store.UpsertedRow, error)
}

// GameLogStore persists game logs. Each call must apply all rows or none.
type GameLogStore interface {
	UpsertGameLogs(ctx context.Context, rows []store.GameLog) ([]store.UpsertedRow, error)
}

// Result tallies one upsert call.
type Result struct {
	Inserted   int     `json:"inserted"`
	Updated    int     `json:"updated"`
	Skipped    int     `json:"skipped"`
	Duplicates int     `json:"duplicates"`
	Failed     int     `json:"failed"`
	Errors     []error `json:"-"`
}

// Upserted is the number of rows that reached storage.
func (r Result) Upserted() int {
	return r.Inserted + r.Updated
}

// Add folds other into r.
func (r *Result) Add(other Result) {
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Duplicates += other.Duplicates
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// Writer batches rows into idempotent upserts keyed by conflict key.
type Writer struct {
	props        PropStore
	gameLogs     GameLogStore
	propBatch    int
	gameLogBatch int
	log          *logrus.Entry
}

// Option customizes a Writer.
type Option func(*Writer)

// WithBatchSizes overrides the batch sizes; non-positive values keep the defaults.
func WithBatchSizes(props, gameLogs int) Option {
	return func(w *Writer) {
		if props > 0 {
			w.propBatch = props
		}
		if gameLogs > 0 {
			w.gameLogBatch = gameLogs
		}
	}
}

// NewWriter builds a Writer over the given stores.
func NewWriter(props PropStore, gameLogs GameLogStore, opts ...Option) *Writer {
	w := &Writer{
		props:        props,
		gameLogs:     gameLogs,
		propBatch:    DefaultPropBatchSize,
		gameLogBatch: DefaultGameLogBatchSize,
		log:          logging.For("upsert"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// UpsertProps writes prop lines. Duplicate conflict keys collapse to the last occurrence.
func (w *Writer) UpsertProps(ctx context.Context, rows []store.PropLine) Result {
	return upsertBatch(ctx, w.log.WithField("table", "proplines"), rows, w.propBatch,
		func(p store.PropLine) string { return p.ConflictKey },
		store.PropLine.Validate,
		w.props.UpsertPropLines,
	)
}

// UpsertGameLogs writes game logs. Duplicate conflict keys collapse to the last occurrence.
func (w *Writer) UpsertGameLogs(ctx context.Context, rows []store.GameLog) Result {
	return upsertBatch(ctx, w.log.WithField("table", "player_game_logs"), rows, w.gameLogBatch,
		func(g store.GameLog) string { return g.ConflictKey },
		store.GameLog.Validate,
		w.gameLogs.UpsertGameLogs,
	)
}

func upsertBatch[T any](
	ctx context.Context,
	log *logrus.Entry,
	rows []T,
	batchSize int,
	key func(T) string,
	validate func(T) error,
	write func(context.Context, []T) ([]store.UpsertedRow, error),
) Result {
	var res Result

	valid := make([]T, 0, len(rows))
	for _, row := range rows {
		if err := validate(row); err != nil {
			res.Skipped++
			log.WithField("conflict_key", key(row)).WithError(err).Debug("skipping invalid row")
			continue
		}
		valid = append(valid, row)
	}

	unique, dups := dedupe(valid, key)
	res.Duplicates = dups

	for start := 0; start < len(unique); start += batchSize {
		end := min(start+batchSize, len(unique))
		batch := unique[start:end]

		written, err := write(ctx, batch)
		if err == nil {
			tally(&res, written)
			continue
		}

		if ctx.Err() != nil {
			res.Failed += len(batch)
			res.Errors = append(res.Errors, &BatchError{Offset: start, Size: len(batch), Err: err})
			log.WithError(err).Warn("⚠️  batch aborted by cancellation")
			continue
		}

		log.WithError(err).WithField("rows", len(batch)).Warn("⚠️  batch failed, retrying row by row")
		for _, row := range batch {
			written, rowErr := write(ctx, []T{row})
			if rowErr != nil {
				res.Failed++
				res.Errors = append(res.Errors, &RowError{ConflictKey: key(row), Err: rowErr})
				continue
			}
			tally(&res, written)
		}
	}

	return res
}

// dedupe keeps first-seen order with last-observed values.
func dedupe[T any](rows []T, key func(T) string) ([]T, int) {
	index := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	dups := 0
	for _, row := range rows {
		k := key(row)
		if i, ok := index[k]; ok {
			out[i] = row
			dups++
			continue
		}
		index[k] = len(out)
		out = append(out, row)
	}
	return out, dups
}

func tally(res *Result, written []store.UpsertedRow) {
	for _, w := range written {
		if w.Inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
}

// RowError is a single row the store rejected.
type RowError struct {
	ConflictKey string
	Err         error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("upsert %s: %v", e.ConflictKey, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// BatchError is a batch that was not written and not retried.
type BatchError struct {
	Offset int
	Size   int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upsert batch [%d:%d]: %v", e.Offset, e.Offset+e.Size, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
