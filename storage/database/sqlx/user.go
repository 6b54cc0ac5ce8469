package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kwanza/darasa/core"
	"github.com/kwanza/darasa/core/user"
)

var userOrdering = core.DBOrdering{Field: "created_at", Ascending: true}

type userRow struct {
	ID                   string         `db:"id"`
	Name                 string         `db:"name"`
	Username             string         `db:"username"`
	Email                string         `db:"email"`
	StudentID            string         `db:"student_id"`
	IsActive             bool           `db:"is_active"`
	Roles                pq.StringArray `db:"roles"`
	PasswordHash         []byte         `db:"password_hash"`
	LastPasswordChangeAt null.Time      `db:"last_password_change_at"`
	BypassToken          null.String    `db:"bypass_token"`
	PrivacyEmail         string         `db:"privacy_email"`
	PrivacyStudentID     string         `db:"privacy_student_id"`
	PrivacyLastSeen      string         `db:"privacy_last_seen"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
	LastLogin            null.Time      `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:                   r.ID,
		Name:                 r.Name,
		Username:             r.Username,
		Email:                r.Email,
		StudentID:            r.StudentID,
		IsActive:             r.IsActive,
		Roles:                r.Roles,
		PasswordHash:         r.PasswordHash,
		LastPasswordChangeAt: r.LastPasswordChangeAt,
		BypassToken:          r.BypassToken,
		Privacy: user.PrivacySettings{
			Email:     r.PrivacyEmail,
			StudentID: r.PrivacyStudentID,
			LastSeen:  r.PrivacyLastSeen,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		LastLogin: r.LastLogin.Time,
	}
}

const userColumns = `id, name, username, email, student_id, is_active, roles, password_hash,
last_password_change_at, bypass_token, privacy_email, privacy_student_id, privacy_last_seen,
created_at, updated_at, last_login`

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	query := `SELECT username, email FROM "user" WHERE (username = ? OR email = ?)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		query += ` AND id NOT IN (?)`
		var err error
		if query, args, err = sqlx.In(query, username, email, ids); err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
	}

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	for _, r := range rows {
		if username != "" && r.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && r.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	query := `
INSERT INTO "user" (name, username, email, student_id, is_active, roles, password_hash,
                    privacy_email, privacy_student_id, privacy_last_seen, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + userColumns
	var row userRow
	err := repo.db.GetContext(ctx, &row, query,
		usr.Name, usr.Username, usr.Email, usr.StudentID, usr.IsActive, pq.StringArray(usr.Roles),
		usr.PasswordHash, usr.Privacy.Email, usr.Privacy.StudentID, usr.Privacy.LastSeen,
		usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	query := `SELECT ` + userColumns + ` FROM "user" ORDER BY ` + userOrdering.String()
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return rowsToUsers(rows), nil
}

func (repo *userRepository) ActiveUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := repo.db.SelectContext(ctx, &ids, `SELECT id FROM "user" WHERE is_active`); err != nil {
		return nil, errors.Wrap(err, "querying active user IDs")
	}
	return ids, nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, args ...interface{}) (user.User, error) {
	var row userRow
	query := `SELECT ` + userColumns + ` FROM "user" WHERE ` + where
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, `id = $1`, id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, `username = $1`, username)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, `email = $1`, email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, `username = $1 OR email = $1`, username)
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, `(name ILIKE `+n+` OR username ILIKE `+n+` OR email ILIKE `+n+`)`)
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		clauses = append(clauses, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(filter.Roles) > 0 {
		args = append(args, pq.StringArray(filter.Roles))
		clauses = append(clauses, fmt.Sprintf("roles && $%d", len(args)))
	}
	if !filter.CreatedFrom.IsZero() {
		args = append(args, filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.CreatedTo.IsZero() {
		args = append(args, filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := `SELECT ` + userColumns + ` FROM "user"`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY ` + userOrdering.String()

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return rowsToUsers(rows), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	sets := []string{"name = $1", "username = $2", "email = $3", "roles = $4", "updated_at = $5"}
	args := []interface{}{usr.Name, usr.Username, usr.Email, pq.StringArray(usr.Roles), usr.UpdatedAt}
	if len(usr.PasswordHash) > 0 {
		args = append(args, usr.PasswordHash)
		sets = append(sets, fmt.Sprintf("password_hash = $%d", len(args)))
	}
	if isActive != nil {
		args = append(args, *isActive)
		sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
	}
	args = append(args, usr.ID)

	query := fmt.Sprintf(
		`UPDATE "user" SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns,
	)
	var row userRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdatePrivacy(ctx context.Context, id string, settings user.PrivacySettings) error {
	query := `
UPDATE "user" SET privacy_email = $1, privacy_student_id = $2, privacy_last_seen = $3, updated_at = NOW()
WHERE id = $4`
	res, err := repo.db.ExecContext(ctx, query, settings.Email, settings.StudentID, settings.LastSeen, id)
	if err != nil {
		return errors.Wrap(err, "updating privacy")
	}
	return checkAffected(res, user.ErrNotFound)
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, t time.Time) (user.User, error) {
	var row userRow
	query := `UPDATE "user" SET last_login = $1 WHERE id = $2 RETURNING ` + userColumns
	if err := repo.db.GetContext(ctx, &row, query, t, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	return row.user(), nil
}

func (repo *userRepository) SetBypassToken(ctx context.Context, id string, token null.String) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE "user" SET bypass_token = $1, updated_at = NOW() WHERE id = $2`, token, id)
	if err != nil {
		return errors.Wrap(err, "setting bypass token")
	}
	return checkAffected(res, user.ErrNotFound)
}

// CommitPasswordChange sets the hash, stamps the change time and clears any
// outstanding bypass token in a single statement.
func (repo *userRepository) CommitPasswordChange(ctx context.Context, id string, hash []byte, changedAt time.Time) error {
	query := `
UPDATE "user" SET password_hash = $1, last_password_change_at = $2, bypass_token = NULL, updated_at = $2
WHERE id = $3`
	res, err := repo.db.ExecContext(ctx, query, hash, changedAt, id)
	if err != nil {
		return errors.Wrap(err, "committing password change")
	}
	return checkAffected(res, user.ErrNotFound)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func rowsToUsers(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users
}

func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "checking affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}
