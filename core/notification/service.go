package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kwanza/darasa/core"
)

var (
	ErrNotFound = errors.New("notification not found")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CreateBatch atomically inserts all rows in one batch; callers keep
		// batches within core.MaxBatchSize.
		CreateBatch(ctx context.Context, notifs []Notification) error
		QueryByUser(ctx context.Context, userID string) ([]Notification, error)
		UnreadCount(ctx context.Context, userID string) (int, error)
		MarkRead(ctx context.Context, id, userID string) error
	}

	// Recipients resolves the broadcast target set.
	Recipients interface {
		ActiveUserIDs(ctx context.Context) ([]string, error)
	}

	Service interface {
		// SendBroadcast creates one notification per active user, committed
		// in sequential chunked batches. All rows share title, message, type
		// and creation time; a part-way failure returns a
		// core.BulkWriteError reporting how many rows committed.
		SendBroadcast(ctx context.Context, b Broadcast) ([]Notification, error)
		QueryByUser(ctx context.Context, userID string) ([]Notification, error)
		UnreadCount(ctx context.Context, userID string) (int, error)
		MarkRead(ctx context.Context, id, userID string) error
	}

	service struct {
		repo       Repository
		recipients Recipients
		logger     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, recipients Recipients, logger core.Logger) Service {
	return &service{repo: repo, recipients: recipients, logger: logger}
}

func (svc *service) SendBroadcast(ctx context.Context, b Broadcast) ([]Notification, error) {
	ids, err := svc.recipients.ActiveUserIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolving broadcast recipients")
	}

	// stage one row per recipient with a shared timestamp
	now := nowFunc().UTC()
	notifs := make([]Notification, 0, len(ids))
	for _, userID := range ids {
		notifs = append(notifs, Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			Title:     b.Title,
			Message:   b.Message,
			Type:      b.Type,
			CreatedAt: now,
		})
	}

	// sequential commits, not parallel
	total := len(notifs)
	for start := 0; start < total; start += core.MaxBatchSize {
		end := start + core.MaxBatchSize
		if end > total {
			end = total
		}
		if err := svc.repo.CreateBatch(ctx, notifs[start:end]); err != nil {
			return nil, core.BulkWriteError{Committed: start, Total: total, Err: err}
		}
	}
	return notifs, nil
}

func (svc *service) QueryByUser(ctx context.Context, userID string) ([]Notification, error) {
	return svc.repo.QueryByUser(ctx, userID)
}

func (svc *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return svc.repo.UnreadCount(ctx, userID)
}

func (svc *service) MarkRead(ctx context.Context, id, userID string) error {
	return svc.repo.MarkRead(ctx, id, userID)
}
