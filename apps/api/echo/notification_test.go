package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwanza/darasa/core/notification"
	"github.com/kwanza/darasa/core/user"
)

func TestNotificationAPI_broadcast(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "admin1", user.AdminRoles)
	student := env.createUser(t, "student1", []string{user.RoleStudent})
	teacher := env.createUser(t, "teacher1", []string{user.RoleTeacher})

	payload := notification.Broadcast{Title: "Exam schedule", Message: "Final exams start on Monday."}

	// admin only
	rec := env.do(http.MethodPost, "/v1/notifications/broadcast", env.getToken(t, teacher), payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/v1/notifications/broadcast", env.getToken(t, admin), payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp BroadcastResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 3, resp.Recipients) // every active user, sender included

	// each recipient sees their own copy
	rec = env.do(http.MethodGet, "/v1/notifications", env.getToken(t, student), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var notifs []notification.Notification
	decodeBody(t, rec, &notifs)
	require.Len(t, notifs, 1)
	assert.Equal(t, "Exam schedule", notifs[0].Title)
	assert.Equal(t, student.ID, notifs[0].UserID)
	assert.Equal(t, notification.TypeAnnouncement, notifs[0].Type)
}

func TestNotificationAPI_readTracking(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "admin1", user.AdminRoles)
	student := env.createUser(t, "student1", []string{user.RoleStudent})
	studentToken := env.getToken(t, student)

	rec := env.do(http.MethodPost, "/v1/notifications/broadcast", env.getToken(t, admin),
		notification.Broadcast{Title: "t", Message: "m"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var count UnreadCountResponse
	rec = env.do(http.MethodGet, "/v1/notifications/unread-count", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &count)
	assert.Equal(t, 1, count.Count)

	var notifs []notification.Notification
	rec = env.do(http.MethodGet, "/v1/notifications", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &notifs)
	require.Len(t, notifs, 1)

	// marking another user's row is not found
	rec = env.do(http.MethodPost, "/v1/notifications/"+notifs[0].ID+"/read", env.getToken(t, admin), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/v1/notifications/"+notifs[0].ID+"/read", studentToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/v1/notifications/unread-count", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &count)
	assert.Equal(t, 0, count.Count)
}
