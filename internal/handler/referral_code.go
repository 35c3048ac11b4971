package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/topgun312/referal-api-test/internal/repository"
	"github.com/topgun312/referal-api-test/internal/utils"
	"github.com/topgun312/referal-api-test/internal/validate"
)

// ReferralCodeHandler implements the referral code lifecycle: create,
// activate and delete. All endpoints require a valid access token; the
// owner of a code is nevertheless re-checked against the database, because
// the authenticated identity and the code owner are independent facts and
// any logged-in user could otherwise manage someone else's code by guessing
// its value.
//
// The single-active-code rule spans the whole table, so every operation
// that could produce a second active code runs its checks and its write
// inside one serializable transaction. Under weaker isolation two
// concurrent activations could both observe "no active code" and both
// succeed.
type ReferralCodeHandler struct {
	Codes *repository.ReferralCodeRepo
}

func NewReferralCodeHandler(codes *repository.ReferralCodeRepo) *ReferralCodeHandler {
	if codes == nil {
		panic("nil repository passed to NewReferralCodeHandler")
	}
	return &ReferralCodeHandler{Codes: codes}
}

type createCodeReq struct {
	Code     uint64 `json:"code" validate:"required"`
	Days     int    `json:"days" validate:"gte=0"`
	IsActive bool   `json:"is_active"`
}

// CreateCode handles POST /v1/referral-codes. The code value must not be
// stored yet, no matter who owns the existing one. When immediate
// activation is requested and another active code exists anywhere, this
// endpoint has always answered 404 rather than 409; existing clients
// depend on that, so the asymmetry with ActivateCode stays.
func (h *ReferralCodeHandler) CreateCode(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createCodeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.Codes.DB().BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := h.Codes.GetByCodeTx(ctx, tx, req.Code); err == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "referal code already exists"})
	} else if !errors.Is(err, repository.ErrCodeNotFound) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	if req.IsActive {
		active, err := h.Codes.ActiveExistsTx(ctx, tx)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
		}
		if active {
			return c.JSON(http.StatusNotFound, echo.Map{"error": repository.ErrActiveCodeExists.Error()})
		}
	}

	rc := repository.ReferralCode{
		Code:      req.Code,
		ExpiresOn: utils.ExpiryDate(time.Now(), req.Days),
		IsActive:  req.IsActive,
		UserID:    userID,
	}
	if err := h.Codes.CreateTx(ctx, tx, &rc); err != nil {
		if errors.Is(err, repository.ErrCodeExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "referal code already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create code failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	return c.JSON(http.StatusCreated, newCodeView(rc))
}

// ActivateCode handles PUT /v1/referral-codes/activate?code=N. Checks run
// in a fixed order inside one serializable transaction: the code must
// exist, no active code may exist system-wide, the expiry date must not
// have passed, and the requester must own the code. The update itself is
// additionally scoped to (code, owner) so it can never flip a row whose
// ownership check was sidestepped.
func (h *ReferralCodeHandler) ActivateCode(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	code, err := strconv.ParseUint(c.QueryParam("code"), 10, 64)
	if err != nil || code == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid code"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.Codes.DB().BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rc, err := h.Codes.GetByCodeTx(ctx, tx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "referal code not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	active, err := h.Codes.ActiveExistsTx(ctx, tx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if active {
		return c.JSON(http.StatusConflict, echo.Map{"error": repository.ErrActiveCodeExists.Error()})
	}

	if rc.ExpiresOn.Before(utils.Today(time.Now())) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "the referal code has expired, please create a new referal code"})
	}

	if rc.UserID != userID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "you can activate or delete only the referal code created by you"})
	}

	updated, err := h.Codes.ActivateTx(ctx, tx, code, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotOwner) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "you can activate or delete only the referal code created by you"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "activate code failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	return c.JSON(http.StatusOK, newCodeView(updated))
}

// DeleteCode handles DELETE /v1/referral-codes?code=N. The code must exist
// and belong to the requester; the removal is permanent.
func (h *ReferralCodeHandler) DeleteCode(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	code, err := strconv.ParseUint(c.QueryParam("code"), 10, 64)
	if err != nil || code == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid code"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.Codes.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rc, err := h.Codes.GetByCodeTx(ctx, tx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "referal code not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if rc.UserID != userID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "you can activate or delete only the referal code created by you"})
	}

	if err := h.Codes.DeleteTx(ctx, tx, code, userID); err != nil {
		if errors.Is(err, repository.ErrNotOwner) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "you can activate or delete only the referal code created by you"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete code failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	return c.NoContent(http.StatusNoContent)
}
