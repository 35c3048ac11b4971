package handler

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topgun312/referal-api-test/internal/repository"
)

func newCodeTestHandler(t *testing.T) (*ReferralCodeHandler, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return NewReferralCodeHandler(repository.NewReferralCodeRepo(db)), mock, db
}

func codeRow(id, code uint64, exp time.Time, active bool, owner uint64) *sqlmock.Rows {
	return sqlmock.
		NewRows([]string{"id", "code", "expires_on", "is_active", "user_id"}).
		AddRow(id, code, exp, active, owner)
}

func newJSONContext(method, target, body string, userID uint64) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != 0 {
		c.Set("user_id", userID)
	}
	return c, rec
}

func TestCreateCode_Immediate(t *testing.T) {
	h, mock, db := newCodeTestHandler(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(1234)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO referral_codes").
		WithArgs(uint64(1234), sqlmock.AnyArg(), true, uint64(1)).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectCommit()

	c, rec := newJSONContext(http.MethodPost, "/v1/referral-codes",
		`{"code":1234,"days":5,"is_active":true}`, 1)
	require.NoError(t, h.CreateCode(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":1234`)
	assert.Contains(t, rec.Body.String(), `"is_active":true`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCode_DuplicateValueAnyOwner(t *testing.T) {
	h, mock, db := newCodeTestHandler(t)
	defer db.Close()

	// Code 1234 already belongs to another user; creation must still conflict.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(1234)).
		WillReturnRows(codeRow(10, 1234, time.Now().AddDate(0, 0, 5), true, 1))
	mock.ExpectRollback()

	c, rec := newJSONContext(http.MethodPost, "/v1/referral-codes",
		`{"code":1234,"days":3,"is_active":false}`, 2)
	require.NoError(t, h.CreateCode(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCode_ImmediateBlockedByExistingActive(t *testing.T) {
	h, mock, db := newCodeTestHandler(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(5678)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	c, rec := newJSONContext(http.MethodPost, "/v1/referral-codes",
		`{"code":5678,"days":5,"is_active":true}`, 1)
	require.NoError(t, h.CreateCode(c))

	// This branch answers 404, not 409; clients depend on it.
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCode_InactiveSkipsActiveCheck(t *testing.T) {
	h, mock, db := newCodeTestHandler(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(5678)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO referral_codes").
		WithArgs(uint64(5678), sqlmock.AnyArg(), false, uint64(1)).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	c, rec := newJSONContext(http.MethodPost, "/v1/referral-codes",
		`{"code":5678,"days":5}`, 1)
	require.NoError(t, h.CreateCode(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_active":false`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateCode_NotFound(t *testing.T) {
	h, mock, db := newCodeTestHandler(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(9999)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	c, rec := newJSONContext(http.MethodPut, "/v1/referral-codes/activate?code=9999", "", 1)
	require.NoError(t, h.ActivateCode(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivateCode_ConflictWhenActiveExists(t *testing.T) {
	h, mock, db := newCodeTestHandler(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(1234)).
		WillReturnRows(codeRow(10, 1234, time.Now().AddDate(0, 0, 5), false, 1))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	c, rec := newJSONContext(http.MethodPut, "/v1/referral-codes/activate?code=1234", "", 1)
	require.NoError(t, h.ActivateCode(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateCode_ExpiredNeverMutates(t *testing.T) {
	h, mock, db := newCodeTestHandler(t)
	defer db.Close()

	// Expiry date in the past; no UPDATE may be issued.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(1234)).
		WillReturnRows(codeRow(10, 1234, time.Now().AddDate(0, 0, -1), false, 1))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	c, rec := newJSONContext(http.MethodPut, "/v1/referral-codes/activate?code=1234", "", 1)
	require.NoError(t, h.ActivateCode(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateCode_ForeignOwnerNeverMutates(t *testing.T) {
	h, mock, db := newCodeTestHandler(t)
	defer db.Close()

	// Code exists but belongs to user 1; user 2 must be rejected before any UPDATE.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(1234)).
		WillReturnRows(codeRow(10, 1234, time.Now().AddDate(0, 0, 5), false, 1))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	c, rec := newJSONContext(http.MethodPut, "/v1/referral-codes/activate?code=1234", "", 2)
	require.NoError(t, h.ActivateCode(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "created by you")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateCode_Success(t *testing.T) {
	h, mock, db := newCodeTestHandler(t)
	defer db.Close()

	exp := time.Now().AddDate(0, 0, 5)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(1234)).
		WillReturnRows(codeRow(10, 1234, exp, false, 1))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("UPDATE referral_codes SET is_active=TRUE WHERE code=").
		WithArgs(uint64(1234), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(1234)).
		WillReturnRows(codeRow(10, 1234, exp, true, 1))
	mock.ExpectCommit()

	c, rec := newJSONContext(http.MethodPut, "/v1/referral-codes/activate?code=1234", "", 1)
	require.NoError(t, h.ActivateCode(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_active":true`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCode_ForeignOwner(t *testing.T) {
	h, mock, db := newCodeTestHandler(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(1234)).
		WillReturnRows(codeRow(10, 1234, time.Now().AddDate(0, 0, 5), false, 1))
	mock.ExpectRollback()

	c, rec := newJSONContext(http.MethodDelete, "/v1/referral-codes?code=1234", "", 2)
	require.NoError(t, h.DeleteCode(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCode_Success(t *testing.T) {
	h, mock, db := newCodeTestHandler(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id,code,expires_on,is_active,user_id FROM referral_codes WHERE code=").
		WithArgs(uint64(1234)).
		WillReturnRows(codeRow(10, 1234, time.Now().AddDate(0, 0, 5), false, 1))
	mock.ExpectExec("DELETE FROM referral_codes WHERE code=").
		WithArgs(uint64(1234), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, rec := newJSONContext(http.MethodDelete, "/v1/referral-codes?code=1234", "", 1)
	require.NoError(t, h.DeleteCode(c))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCode_InvalidQueryParam(t *testing.T) {
	h, _, db := newCodeTestHandler(t)
	defer db.Close()

	c, rec := newJSONContext(http.MethodDelete, "/v1/referral-codes?code=abc", "", 1)
	require.NoError(t, h.DeleteCode(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
