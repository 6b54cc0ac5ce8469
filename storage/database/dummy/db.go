package dummydb

import (
	"sync"

	"github.com/kwanza/darasa/core/attendance"
	"github.com/kwanza/darasa/core/notification"
	"github.com/kwanza/darasa/core/user"
)

type (
	DB struct {
		user         *userTable
		attendance   *attendanceTable
		notification *notificationTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	attendanceTable struct {
		sync.RWMutex
		table map[string]*attendance.Record
		batchFailure
	}

	notificationTable struct {
		sync.RWMutex
		table map[string]*notification.Notification
		batchFailure
	}

	// batchFailure makes the n-th batch write fail, for exercising part-way
	// bulk failures in tests. Zero value never fails.
	batchFailure struct {
		failOnCall int
		batchCalls int
	}
)

func (bf *batchFailure) shouldFail() bool {
	bf.batchCalls++
	return bf.failOnCall != 0 && bf.batchCalls == bf.failOnCall
}

func Open() (*DB, error) {
	db := &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		attendance:   &attendanceTable{table: make(map[string]*attendance.Record)},
		notification: &notificationTable{table: make(map[string]*notification.Notification)},
	}
	return db, nil
}

// FailAttendanceBatchCall makes the n-th attendance batch write fail (1-based).
func (db *DB) FailAttendanceBatchCall(n int) { db.attendance.failOnCall = n }

// FailNotificationBatchCall makes the n-th notification batch write fail (1-based).
func (db *DB) FailNotificationBatchCall(n int) { db.notification.failOnCall = n }
