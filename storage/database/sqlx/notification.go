package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/kwanza/darasa/core/notification"
)

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Type      string    `db:"type"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		Message:   r.Message,
		Type:      r.Type,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

// CreateBatch inserts the batch in one transaction so it commits or rolls
// back as a unit.
func (repo *notificationRepository) CreateBatch(ctx context.Context, notifs []notification.Notification) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning batch")
	}
	defer func() { _ = tx.Rollback() }()

	query := `
INSERT INTO notification (id, user_id, title, message, type, is_read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, n := range notifs {
		if _, err = tx.ExecContext(ctx, query, n.ID, n.UserID, n.Title, n.Message, n.Type, n.IsRead, n.CreatedAt); err != nil {
			return errors.Wrap(err, "inserting notification")
		}
	}
	return errors.Wrap(tx.Commit(), "committing batch")
}

func (repo *notificationRepository) QueryByUser(ctx context.Context, userID string) ([]notification.Notification, error) {
	var rows []notificationRow
	query := `
SELECT id, user_id, title, message, type, is_read, created_at
FROM notification WHERE user_id = $1 ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notifs := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		notifs = append(notifs, r.notification())
	}
	return notifs, nil
}

func (repo *notificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notification WHERE user_id = $1 AND NOT is_read`
	if err := repo.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return count, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE notification SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return checkAffected(res, notification.ErrNotFound)
}
