package dummydb

import (
	"context"

	"github.com/pkg/errors"

	"github.com/kwanza/darasa/core/attendance"
)

var errBatchFailed = errors.New("batch write failed")

type attendanceRepository struct {
	db *attendanceTable
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.attendance}
}

func (repo *attendanceRepository) UpsertBatch(_ context.Context, records []attendance.Record) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.db.shouldFail() {
		return errBatchFailed
	}
	// all-or-nothing within a batch
	for i := range records {
		rec := records[i]
		repo.db.table[rec.ID] = &rec
	}
	return nil
}

func (repo *attendanceRepository) GetRecord(_ context.Context, id string) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[id]; ok {
		return *rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) QueryByDate(_ context.Context, date string) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var records []attendance.Record
	for _, rec := range repo.db.table {
		if rec.Date == date {
			records = append(records, *rec)
		}
	}
	return records, nil
}

func (repo *attendanceRepository) QueryByUser(_ context.Context, userID string) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var records []attendance.Record
	for _, rec := range repo.db.table {
		if rec.UserID == userID {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// Len reports the number of stored records; test helper.
func (repo *attendanceRepository) Len() int {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.table)
}
