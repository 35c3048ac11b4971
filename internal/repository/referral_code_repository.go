package repository

import (
	"context"
	"database/sql"
	"time"
)

// ReferralCode mirrors the 'referral_codes' table. ExpiresOn is a calendar
// date; a code is usable for activation through the end of that day. At most
// one row system-wide may have IsActive set, which is enforced by running
// every activation inside a serializable transaction.
type ReferralCode struct {
	ID        uint64
	Code      uint64
	ExpiresOn time.Time
	IsActive  bool
	UserID    uint64
}

// ReferralCodeRepo provides data access to the referral_codes table. All
// state transitions run through *Tx methods so the handler can keep the
// read-validate-write sequence of one request inside a single transaction.
type ReferralCodeRepo struct{ db *sql.DB }

func NewReferralCodeRepo(db *sql.DB) *ReferralCodeRepo { return &ReferralCodeRepo{db: db} }

// DB exposes the underlying handle for opening transactions.
func (r *ReferralCodeRepo) DB() *sql.DB { return r.db }

const codeColumns = "id,code,expires_on,is_active,user_id"

func scanCode(row *sql.Row) (ReferralCode, error) {
	var rc ReferralCode
	err := row.Scan(&rc.ID, &rc.Code, &rc.ExpiresOn, &rc.IsActive, &rc.UserID)
	if err == sql.ErrNoRows {
		return ReferralCode{}, ErrCodeNotFound
	}
	return rc, err
}

// GetByCode fetches a referral code by its value.
func (r *ReferralCodeRepo) GetByCode(ctx context.Context, code uint64) (ReferralCode, error) {
	return scanCode(r.db.QueryRowContext(ctx,
		"SELECT "+codeColumns+" FROM referral_codes WHERE code=? LIMIT 1", code))
}

// GetByCodeTx is GetByCode scoped to an open transaction.
func (r *ReferralCodeRepo) GetByCodeTx(ctx context.Context, tx *sql.Tx, code uint64) (ReferralCode, error) {
	return scanCode(tx.QueryRowContext(ctx,
		"SELECT "+codeColumns+" FROM referral_codes WHERE code=? LIMIT 1", code))
}

// ActiveExistsTx reports whether any active referral code exists anywhere in
// the table. The check runs inside the caller's transaction so activation
// cannot race another request past it.
func (r *ReferralCodeRepo) ActiveExistsTx(ctx context.Context, tx *sql.Tx) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM referral_codes WHERE is_active=TRUE)").Scan(&exists)
	return exists, err
}

// ActiveByUserTx returns the active referral code owned by the given user,
// or ErrCodeNotFound when the user has none. It is scoped to an open
// transaction so a caller can read the owner and their active code under
// one snapshot.
func (r *ReferralCodeRepo) ActiveByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) (ReferralCode, error) {
	return scanCode(tx.QueryRowContext(ctx,
		"SELECT "+codeColumns+" FROM referral_codes WHERE user_id=? AND is_active=TRUE LIMIT 1",
		userID))
}

// ListByUser returns every referral code owned by a user. Used when
// rendering the full user profile with its nested codes.
func (r *ReferralCodeRepo) ListByUser(ctx context.Context, userID uint64) ([]ReferralCode, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+codeColumns+" FROM referral_codes WHERE user_id=? ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []ReferralCode
	for rows.Next() {
		var rc ReferralCode
		if err := rows.Scan(&rc.ID, &rc.Code, &rc.ExpiresOn, &rc.IsActive, &rc.UserID); err != nil {
			return nil, err
		}
		codes = append(codes, rc)
	}
	return codes, rows.Err()
}

// CreateTx inserts a referral code within the given transaction and
// populates the generated ID. A row whose code value already exists is
// reported as ErrCodeExists, no matter who owns it; the unique key on the
// code column backs this up at the database level.
func (r *ReferralCodeRepo) CreateTx(ctx context.Context, tx *sql.Tx, rc *ReferralCode) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO referral_codes (code, expires_on, is_active, user_id) VALUES (?,?,?,?)",
		rc.Code, rc.ExpiresOn.Format("2006-01-02"), rc.IsActive, rc.UserID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrCodeExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rc.ID = uint64(id)
	return nil
}

// ActivateTx flips a code to active. The update is scoped to
// (code, user_id) so it only applies when the requesting user owns the row;
// a non-owner produces zero affected rows even if the code exists.
func (r *ReferralCodeRepo) ActivateTx(ctx context.Context, tx *sql.Tx, code, userID uint64) (ReferralCode, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE referral_codes SET is_active=TRUE WHERE code=? AND user_id=?",
		code, userID)
	if err != nil {
		return ReferralCode{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ReferralCode{}, ErrNotOwner
	}
	return r.GetByCodeTx(ctx, tx, code)
}

// DeleteTx permanently removes a code. The delete is scoped to
// (code, user_id); deleting a code owned by someone else affects no rows
// and is reported as ErrNotOwner.
func (r *ReferralCodeRepo) DeleteTx(ctx context.Context, tx *sql.Tx, code, userID uint64) error {
	res, err := tx.ExecContext(ctx,
		"DELETE FROM referral_codes WHERE code=? AND user_id=?", code, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotOwner
	}
	return nil
}
