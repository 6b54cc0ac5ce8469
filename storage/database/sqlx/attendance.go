package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/kwanza/darasa/core/attendance"
)

type attendanceRow struct {
	ID       string    `db:"id"`
	UserID   string    `db:"user_id"`
	Date     time.Time `db:"date"`
	Status   string    `db:"status"`
	MarkedBy string    `db:"marked_by"`
	MarkedAt time.Time `db:"marked_at"`
}

func (r attendanceRow) record() attendance.Record {
	return attendance.Record{
		ID:       r.ID,
		UserID:   r.UserID,
		Date:     r.Date.Format(attendance.DateFormat),
		Status:   r.Status,
		MarkedBy: r.MarkedBy,
		MarkedAt: r.MarkedAt,
	}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

// UpsertBatch writes the batch in one transaction so it commits or rolls
// back as a unit. Re-marking the same (date, user) overwrites the row.
func (repo *attendanceRepository) UpsertBatch(ctx context.Context, records []attendance.Record) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning batch")
	}
	defer func() { _ = tx.Rollback() }()

	query := `
INSERT INTO attendance_record (id, user_id, date, status, marked_by, marked_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, marked_at = EXCLUDED.marked_at`
	for _, rec := range records {
		if _, err = tx.ExecContext(ctx, query, rec.ID, rec.UserID, rec.Date, rec.Status, rec.MarkedBy, rec.MarkedAt); err != nil {
			return errors.Wrap(err, "upserting attendance record")
		}
	}
	return errors.Wrap(tx.Commit(), "committing batch")
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, id string) (attendance.Record, error) {
	var row attendanceRow
	query := `SELECT id, user_id, date, status, marked_by, marked_at FROM attendance_record WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "getting attendance record")
	}
	return row.record(), nil
}

func (repo *attendanceRepository) QueryByDate(ctx context.Context, date string) ([]attendance.Record, error) {
	var rows []attendanceRow
	query := `SELECT id, user_id, date, status, marked_by, marked_at FROM attendance_record WHERE date = $1`
	if err := repo.db.SelectContext(ctx, &rows, query, date); err != nil {
		return nil, errors.Wrap(err, "querying attendance by date")
	}
	return rowsToRecords(rows), nil
}

func (repo *attendanceRepository) QueryByUser(ctx context.Context, userID string) ([]attendance.Record, error) {
	var rows []attendanceRow
	query := `SELECT id, user_id, date, status, marked_by, marked_at FROM attendance_record WHERE user_id = $1 ORDER BY date`
	if err := repo.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying attendance by user")
	}
	return rowsToRecords(rows), nil
}

func rowsToRecords(rows []attendanceRow) []attendance.Record {
	records := make([]attendance.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records
}
