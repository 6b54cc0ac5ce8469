package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/kwanza/darasa/core"
)

var (
	ErrNotFound = errors.New("attendance record not found")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		// UpsertBatch atomically writes all records in one batch; callers
		// keep batches within core.MaxBatchSize.
		UpsertBatch(ctx context.Context, records []Record) error
		GetRecord(ctx context.Context, id string) (Record, error)
		QueryByDate(ctx context.Context, date string) ([]Record, error)
		QueryByUser(ctx context.Context, userID string) ([]Record, error)
	}

	Service interface {
		// BulkMark stages a record per mark and commits them in sequential
		// chunked batches. The staged records are returned only once every
		// chunk has committed; a part-way failure returns a
		// core.BulkWriteError reporting how many writes committed.
		BulkMark(ctx context.Context, date, markedBy string, marks []Mark) ([]Record, error)
		QueryByDate(ctx context.Context, date string) ([]Record, error)
		QueryByUser(ctx context.Context, userID string) ([]Record, error)
	}

	service struct {
		repo   Repository
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, logger core.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func (svc *service) BulkMark(ctx context.Context, date, markedBy string, marks []Mark) ([]Record, error) {
	now := nowFunc().UTC()

	// stage the full target set before any write
	records := make([]Record, 0, len(marks))
	for _, m := range marks {
		records = append(records, Record{
			ID:       RecordID(date, m.UserID),
			UserID:   m.UserID,
			Date:     date,
			Status:   m.Status,
			MarkedBy: markedBy,
			MarkedAt: now,
		})
	}

	// sequential commits, not parallel: bounds store load and keeps the
	// commit order deterministic
	total := len(records)
	for start := 0; start < total; start += core.MaxBatchSize {
		end := start + core.MaxBatchSize
		if end > total {
			end = total
		}
		if err := svc.repo.UpsertBatch(ctx, records[start:end]); err != nil {
			// earlier chunks stay committed; safe to retry since records are
			// idempotent upserts keyed by (date, user)
			return nil, core.BulkWriteError{Committed: start, Total: total, Err: err}
		}
	}
	return records, nil
}

func (svc *service) QueryByDate(ctx context.Context, date string) ([]Record, error) {
	return svc.repo.QueryByDate(ctx, date)
}

func (svc *service) QueryByUser(ctx context.Context, userID string) ([]Record, error) {
	return svc.repo.QueryByUser(ctx, userID)
}
