package echoapi

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwanza/darasa/core/attendance"
	"github.com/kwanza/darasa/core/user"
)

func TestAttendanceAPI_bulkMark(t *testing.T) {
	env := setup(t)
	teacher := env.createUser(t, "teacher1", []string{user.RoleTeacher})
	student := env.createUser(t, "student1", []string{user.RoleStudent})

	payload := attendance.BulkMark{
		Date: "2021-03-15",
		Marks: []attendance.Mark{
			{UserID: student.ID, Status: attendance.StatusPresent},
		},
	}

	// students cannot mark attendance
	rec := env.do(http.MethodPost, "/v1/attendance/bulk-mark", env.getToken(t, student), payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/v1/attendance/bulk-mark", env.getToken(t, teacher), payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var records []attendance.Record
	decodeBody(t, rec, &records)
	require.Len(t, records, 1)
	assert.Equal(t, attendance.RecordID("2021-03-15", student.ID), records[0].ID)
	assert.Equal(t, teacher.ID, records[0].MarkedBy)

	// invalid payloads
	rec = env.do(http.MethodPost, "/v1/attendance/bulk-mark", env.getToken(t, teacher),
		attendance.BulkMark{Date: "15/03/2021", Marks: payload.Marks})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(http.MethodPost, "/v1/attendance/bulk-mark", env.getToken(t, teacher),
		attendance.BulkMark{Date: "2021-03-15", Marks: []attendance.Mark{{UserID: student.ID, Status: "asleep"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttendanceAPI_bulkMark_partialFailure(t *testing.T) {
	env := setup(t)
	teacher := env.createUser(t, "teacher1", []string{user.RoleTeacher})

	marks := make([]attendance.Mark, 500)
	for i := range marks {
		marks[i] = attendance.Mark{UserID: fmt.Sprintf("usr-%03d", i), Status: attendance.StatusPresent}
	}
	env.db.FailAttendanceBatchCall(2)

	rec := env.do(http.MethodPost, "/v1/attendance/bulk-mark", env.getToken(t, teacher),
		attendance.BulkMark{Date: "2021-03-15", Marks: marks})
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())

	var resp struct {
		Error     string `json:"error"`
		Committed int    `json:"committed"`
		Total     int    `json:"total"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "some records may have been updated", resp.Error)
	assert.Equal(t, 450, resp.Committed)
	assert.Equal(t, 500, resp.Total)
}

func TestAttendanceAPI_queries(t *testing.T) {
	env := setup(t)
	teacher := env.createUser(t, "teacher1", []string{user.RoleTeacher})
	student := env.createUser(t, "student1", []string{user.RoleStudent})
	other := env.createUser(t, "student2", []string{user.RoleStudent})

	rec := env.do(http.MethodPost, "/v1/attendance/bulk-mark", env.getToken(t, teacher), attendance.BulkMark{
		Date: "2021-03-15",
		Marks: []attendance.Mark{
			{UserID: student.ID, Status: attendance.StatusLate},
			{UserID: other.ID, Status: attendance.StatusPresent},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// staff query by date
	rec = env.do(http.MethodGet, "/v1/attendance?date=2021-03-15", env.getToken(t, teacher), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var records []attendance.Record
	decodeBody(t, rec, &records)
	assert.Len(t, records, 2)

	// students cannot query by date
	rec = env.do(http.MethodGet, "/v1/attendance?date=2021-03-15", env.getToken(t, student), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// a student reads their own records only
	rec = env.do(http.MethodGet, "/v1/attendance/users/"+student.ID, env.getToken(t, student), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &records)
	require.Len(t, records, 1)
	assert.Equal(t, attendance.StatusLate, records[0].Status)

	rec = env.do(http.MethodGet, "/v1/attendance/users/"+other.ID, env.getToken(t, student), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
