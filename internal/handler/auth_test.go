package handler

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/topgun312/referal-api-test/internal/config"
	"github.com/topgun312/referal-api-test/internal/repository"
)

func newAuthTestHandler(t *testing.T) (*AuthHandler, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	cfg := config.Config{
		JWTSecret:      "test-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     bcrypt.MinCost,
	}
	h := NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db))
	return h, mock, db
}

func activeUserRow(t *testing.T, id uint64, email, password string, isActive bool) *sqlmock.Rows {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now()
	return sqlmock.
		NewRows([]string{"id", "email", "first_name", "last_name", "password_hash",
			"is_active", "referred_by", "registered_at", "updated_at"}).
		AddRow(id, email, "Bob", "Jones", hash, isActive, 0, now, now)
}

func TestLogin_Success(t *testing.T) {
	h, mock, db := newAuthTestHandler(t)
	defer db.Close()

	mock.ExpectQuery("FROM users WHERE email=").
		WithArgs("bob@example.com").
		WillReturnRows(activeUserRow(t, 7, "bob@example.com", "secret", true))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(uint64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	c, rec := newJSONContext(http.MethodPost, "/v1/auth/login",
		`{"email":"bob@example.com","password":"secret"}`, 0)
	require.NoError(t, h.Login(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access"`)
	assert.Contains(t, rec.Body.String(), `"refresh"`)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_WrongPassword(t *testing.T) {
	h, mock, db := newAuthTestHandler(t)
	defer db.Close()

	mock.ExpectQuery("FROM users WHERE email=").
		WithArgs("bob@example.com").
		WillReturnRows(activeUserRow(t, 7, "bob@example.com", "secret", true))

	c, rec := newJSONContext(http.MethodPost, "/v1/auth/login",
		`{"email":"bob@example.com","password":"wrong"}`, 0)
	require.NoError(t, h.Login(c))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_UnknownEmail(t *testing.T) {
	h, mock, db := newAuthTestHandler(t)
	defer db.Close()

	mock.ExpectQuery("FROM users WHERE email=").
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	c, rec := newJSONContext(http.MethodPost, "/v1/auth/login",
		`{"email":"ghost@example.com","password":"secret"}`, 0)
	require.NoError(t, h.Login(c))

	// Unknown email and wrong password answer identically.
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_InactiveUser(t *testing.T) {
	h, mock, db := newAuthTestHandler(t)
	defer db.Close()

	mock.ExpectQuery("FROM users WHERE email=").
		WithArgs("bob@example.com").
		WillReturnRows(activeUserRow(t, 7, "bob@example.com", "secret", false))

	c, rec := newJSONContext(http.MethodPost, "/v1/auth/login",
		`{"email":"bob@example.com","password":"secret"}`, 0)
	require.NoError(t, h.Login(c))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefresh_UnknownToken(t *testing.T) {
	h, mock, db := newAuthTestHandler(t)
	defer db.Close()

	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash=").
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	c, rec := newJSONContext(http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"deadbeef"}`, 0)
	require.NoError(t, h.Refresh(c))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefresh_RotatesToken(t *testing.T) {
	h, mock, db := newAuthTestHandler(t)
	defer db.Close()

	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash=").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.
			NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(7, time.Now().Add(24*time.Hour), nil))
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at=").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM users WHERE id=").
		WithArgs(uint64(7)).
		WillReturnRows(activeUserRow(t, 7, "bob@example.com", "secret", true))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(uint64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	c, rec := newJSONContext(http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"deadbeef"}`, 0)
	require.NoError(t, h.Refresh(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogout_RevokesToken(t *testing.T) {
	h, mock, db := newAuthTestHandler(t)
	defer db.Close()

	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash=").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.
			NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(7, time.Now().Add(24*time.Hour), nil))
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at=").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, rec := newJSONContext(http.MethodPost, "/v1/auth/logout",
		`{"refresh_token":"deadbeef"}`, 0)
	require.NoError(t, h.Logout(c))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
