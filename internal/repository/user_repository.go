package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// User mirrors the 'users' table. PasswordHash is opaque bytes produced by
// bcrypt; ReferredBy is zero when the user registered without a referral code.
type User struct {
	ID           uint64
	Email        string
	FirstName    string
	LastName     string
	PasswordHash []byte
	IsActive     bool
	ReferredBy   uint64
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// UpdateUserParams enumerates the profile fields a caller may change. An
// explicit struct is used instead of a free-form field map so unknown keys
// cannot be silently accepted or dropped. PasswordHash is always written.
type UpdateUserParams struct {
	Email        string
	FirstName    string
	LastName     string
	PasswordHash []byte
}

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions that
// span both user and referral code tables.
func (r *UserRepo) DB() *sql.DB { return r.db }

const userColumns = "id,email,first_name,last_name,password_hash,is_active,referred_by,registered_at,updated_at"

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.IsActive, &u.ReferredBy, &u.RegisteredAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// NormalizeEmail lower-cases and trims an email so lookups and uniqueness
// checks are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateTx inserts a user within the given transaction and populates the
// generated ID and timestamps on the provided record. Duplicate emails are
// reported as ErrEmailExists.
func (r *UserRepo) CreateTx(ctx context.Context, tx *sql.Tx, u *User) error {
	u.Email = NormalizeEmail(u.Email)
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, first_name, last_name, password_hash, referred_by) VALUES (?,?,?,?,?)",
		u.Email, u.FirstName, u.LastName, u.PasswordHash, u.ReferredBy)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	// Query back the full row to populate defaults set by the database.
	got, err := scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", u.ID))
	if err != nil {
		return err
	}
	*u = got
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1",
		NormalizeEmail(email)))
}

// GetByEmailTx is GetByEmail scoped to an open transaction so registration
// can check uniqueness and insert under one consistent snapshot.
func (r *UserRepo) GetByEmailTx(ctx context.Context, tx *sql.Tx, email string) (User, error) {
	return scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1",
		NormalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// ListByReferrer returns every user whose referred_by equals the given
// referrer id, ordered by registration time.
func (r *UserRepo) ListByReferrer(ctx context.Context, referrerID uint64) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE referred_by=? ORDER BY registered_at",
		referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
			&u.IsActive, &u.ReferredBy, &u.RegisteredAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateByEmailTx applies an enumerated set of profile changes to the user
// currently stored under email and returns the updated row. The password
// hash is overwritten on every call. Changing the email to one already
// taken by another user is reported as ErrEmailExists.
func (r *UserRepo) UpdateByEmailTx(ctx context.Context, tx *sql.Tx, email string, p UpdateUserParams) (User, error) {
	email = NormalizeEmail(email)
	newEmail := NormalizeEmail(p.Email)
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET email=?, first_name=?, last_name=?, password_hash=?, updated_at=UTC_TIMESTAMP() WHERE email=?",
		newEmail, p.FirstName, p.LastName, p.PasswordHash, email)
	if err != nil {
		if isDuplicateKey(err) {
			return User{}, ErrEmailExists
		}
		return User{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// The row may exist with identical values; distinguish absent from unchanged.
		if _, gerr := r.GetByEmailTx(ctx, tx, newEmail); gerr != nil {
			return User{}, ErrUserNotFound
		}
	}
	return r.GetByEmailTx(ctx, tx, newEmail)
}

// isDuplicateKey reports whether a MySQL error is a unique constraint
// violation (error number 1062).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}
