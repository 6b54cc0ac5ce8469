package dummydb

import (
	"context"

	"github.com/kwanza/darasa/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) CreateBatch(_ context.Context, notifs []notification.Notification) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.db.shouldFail() {
		return errBatchFailed
	}
	for i := range notifs {
		n := notifs[i]
		repo.db.table[n.ID] = &n
	}
	return nil
}

func (repo *notificationRepository) QueryByUser(_ context.Context, userID string) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var notifs []notification.Notification
	for _, n := range repo.db.table {
		if n.UserID == userID {
			notifs = append(notifs, *n)
		}
	}
	return notifs, nil
}

func (repo *notificationRepository) UnreadCount(_ context.Context, userID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, n := range repo.db.table {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, id, userID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	n, ok := repo.db.table[id]
	if !ok || n.UserID != userID {
		return notification.ErrNotFound
	}
	n.IsRead = true
	return nil
}

// Len reports the number of stored notifications; test helper.
func (repo *notificationRepository) Len() int {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.table)
}
