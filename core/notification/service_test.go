package notification_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwanza/darasa/core"
	"github.com/kwanza/darasa/core/notification"
	logsvc "github.com/kwanza/darasa/services/logger"
	dummydb "github.com/kwanza/darasa/storage/database/dummy"
)

// staticRecipients resolves broadcasts to a fixed user set.
type staticRecipients []string

func (r staticRecipients) ActiveUserIDs(context.Context) ([]string, error) { return r, nil }

func userIDs(n int) staticRecipients {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, fmt.Sprintf("usr-%04d", i))
	}
	return ids
}

func setup(t *testing.T, recipients notification.Recipients) (notification.Service, notification.Repository, *dummydb.DB) {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	repo := dummydb.NewNotificationRepository(db)
	svc := notification.NewService(repo, recipients, logsvc.NewTestLogger())
	return svc, repo, db
}

func repoLen(t *testing.T, repo notification.Repository) int {
	t.Helper()

	counter, ok := repo.(interface{ Len() int })
	require.True(t, ok)
	return counter.Len()
}

func TestService_SendBroadcast(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t, userIDs(5))

	notifs, err := svc.SendBroadcast(ctx, notification.Broadcast{
		Title:   "Exam schedule",
		Message: "Final exams start on Monday.",
		Type:    notification.TypeAnnouncement,
	})
	require.NoError(t, err)
	require.Len(t, notifs, 5)
	assert.Equal(t, 5, repoLen(t, repo))

	// one immutable row per recipient, all sharing content and timestamp
	seen := make(map[string]bool, len(notifs))
	for _, n := range notifs {
		assert.NotEmpty(t, n.ID)
		assert.False(t, seen[n.UserID], "duplicate row for user %s", n.UserID)
		seen[n.UserID] = true
		assert.Equal(t, "Exam schedule", n.Title)
		assert.Equal(t, "Final exams start on Monday.", n.Message)
		assert.Equal(t, notifs[0].CreatedAt, n.CreatedAt)
		assert.False(t, n.IsRead)
	}
}

func TestService_SendBroadcast_chunksLargeSets(t *testing.T) {
	ctx := context.Background()
	svc, repo, db := setup(t, userIDs(1000))

	// 1000 recipients commit in three chunks
	db.FailNotificationBatchCall(4)
	notifs, err := svc.SendBroadcast(ctx, notification.Broadcast{Title: "t", Message: "m"})
	require.NoError(t, err)
	assert.Len(t, notifs, 1000)
	assert.Equal(t, 1000, repoLen(t, repo))
}

func TestService_SendBroadcast_partialFailure(t *testing.T) {
	ctx := context.Background()
	svc, repo, db := setup(t, userIDs(1000))

	db.FailNotificationBatchCall(3)
	notifs, err := svc.SendBroadcast(ctx, notification.Broadcast{Title: "t", Message: "m"})
	require.Error(t, err)
	assert.Nil(t, notifs)

	var bwErr core.BulkWriteError
	require.True(t, errors.As(err, &bwErr), "want BulkWriteError, got %v", err)
	assert.Equal(t, 900, bwErr.Committed)
	assert.Equal(t, 1000, bwErr.Total)

	// earlier chunks stay committed
	assert.Equal(t, 900, repoLen(t, repo))
}

func TestService_readTracking(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t, userIDs(2))

	_, err := svc.SendBroadcast(ctx, notification.Broadcast{Title: "t", Message: "m"})
	require.NoError(t, err)

	notifs, err := svc.QueryByUser(ctx, "usr-0000")
	require.NoError(t, err)
	require.Len(t, notifs, 1)

	count, err := svc.UnreadCount(ctx, "usr-0000")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// marking requires ownership
	err = svc.MarkRead(ctx, notifs[0].ID, "usr-0001")
	assert.Equal(t, notification.ErrNotFound, errors.Cause(err))

	require.NoError(t, svc.MarkRead(ctx, notifs[0].ID, "usr-0000"))
	count, err = svc.UnreadCount(ctx, "usr-0000")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.Equal(t, notification.ErrNotFound, errors.Cause(svc.MarkRead(ctx, "missing", "usr-0000")))
}
