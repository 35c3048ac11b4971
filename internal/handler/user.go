package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/topgun312/referal-api-test/internal/config"
	"github.com/topgun312/referal-api-test/internal/queue"
	"github.com/topgun312/referal-api-test/internal/repository"
	"github.com/topgun312/referal-api-test/internal/utils"
	"github.com/topgun312/referal-api-test/internal/validate"
	"github.com/topgun312/referal-api-test/internal/verifier"
)

// UserHandler implements registration, referral redemption and profile
// queries. Direct registration and registration through a referral code are
// both open endpoints; profile reads and updates require a valid access
// token.
type UserHandler struct {
	Cfg      config.Config
	Users    *repository.UserRepo
	Codes    *repository.ReferralCodeRepo
	Verifier *verifier.Client
}

func NewUserHandler(cfg config.Config, users *repository.UserRepo, codes *repository.ReferralCodeRepo, vf *verifier.Client) *UserHandler {
	if users == nil || codes == nil {
		panic("nil repository passed to NewUserHandler")
	}
	return &UserHandler{Cfg: cfg, Users: users, Codes: codes, Verifier: vf}
}

type createUserReq struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required,max=30"`
	LastName  string `json:"last_name" validate:"required,max=30"`
	Password  string `json:"password" validate:"required"`
}

// registerTx persists a new user inside the caller's transaction: the email
// uniqueness check and the insert observe the same snapshot. referredBy is
// zero for direct registration and the code owner's id when redeeming a code.
func (h *UserHandler) registerTx(ctx context.Context, tx *sql.Tx, req createUserReq, referredBy uint64) (repository.User, error) {
	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return repository.User{}, err
	}

	if _, err := h.Users.GetByEmailTx(ctx, tx, req.Email); err == nil {
		return repository.User{}, repository.ErrEmailExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return repository.User{}, err
	}

	u := repository.User{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		ReferredBy:   referredBy,
	}
	if err := h.Users.CreateTx(ctx, tx, &u); err != nil {
		return repository.User{}, err
	}
	return u, nil
}

// Register handles POST /v1/users/register: direct registration without a
// referral code.
func (h *UserHandler) Register(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.Users.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	u, err := h.registerTx(ctx, tx, req, 0)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "user already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	return c.JSON(http.StatusCreated, newUserView(u))
}

// RequestReferralCode handles GET /v1/users/referral-code. The referrer is
// looked up by email; their active code is mailed to user_email through the
// broker. Publishing is fire-and-forget: the caller is told the message was
// sent without waiting for delivery, and a failed send is never surfaced.
func (h *UserHandler) RequestReferralCode(c echo.Context) error {
	referrerEmail := c.QueryParam("referer_email")
	recipientEmail := c.QueryParam("user_email")
	if !validate.Email(referrerEmail) || !validate.Email(recipientEmail) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "referer_email and user_email must be valid emails"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	// Read the referrer and their active code under one snapshot so the
	// mailed-out code cannot belong to a referrer row that changed between
	// the two reads.
	tx, err := h.Users.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	referrer, err := h.Users.GetByEmailTx(ctx, tx, referrerEmail)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	rc, err := h.Codes.ActiveByUserTx(ctx, tx, referrer.ID)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": fmt.Sprintf("the user %s does not have any active referal codes", referrerEmail),
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	ev := queue.ReferralEmailEvent{
		ToEmail:     recipientEmail,
		Username:    recipientEmail,
		Code:        rc.Code,
		Link:        h.Cfg.RegistrationURL,
		LinkLabel:   "End registration",
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}
	// Decoupled from the request: delivery failures are logged by the
	// publisher and never roll back or block this response.
	go func() { _ = queue.PublishReferralEmail(context.Background(), ev) }()

	return c.JSON(http.StatusOK, echo.Map{
		"detail": fmt.Sprintf("a message with the referal code has been sent to email %s", recipientEmail),
	})
}

// RegisterWithReferralCode handles POST /v1/users/register-with-code?code=N.
// The code value is first checked by a pure range predicate; the code
// lookup, the email uniqueness check and the insert then run inside one
// transaction, so the code cannot be deleted between being looked up and
// the new user being linked to its owner. The code is not consumed, so the
// same code can onboard any number of users while it is stored.
func (h *UserHandler) RegisterWithReferralCode(c echo.Context) error {
	code, err := strconv.ParseUint(c.QueryParam("code"), 10, 64)
	if err != nil || !utils.ValidReferralCode(code) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "referal code invalid"})
	}
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.Users.DB().BeginTx(ctx, nil)
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

	u, err := h.registerTx(ctx, tx, req, rc.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "user already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	return c.JSON(http.StatusCreated, newUserView(u))
}

// UserInfo handles GET /v1/users/info?email=. Returns the full profile
// including the nested list of referral codes the user owns.
func (h *UserHandler) UserInfo(c echo.Context) error {
	email := c.QueryParam("email")
	if !validate.Email(email) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email must be a valid email"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	codes, err := h.Codes.ListByUser(ctx, u.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	view := newUserView(u)
	for _, rc := range codes {
		view.ReferralCodes = append(view.ReferralCodes, newCodeView(rc))
	}
	return c.JSON(http.StatusOK, view)
}

// Referrals handles GET /v1/users/referrals?referer_id=. Lists every user
// who registered through a code owned by the given referrer.
func (h *UserHandler) Referrals(c echo.Context) error {
	referrerID, err := strconv.ParseUint(c.QueryParam("referer_id"), 10, 64)
	if err != nil || referrerID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid referer_id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Users.GetByID(ctx, referrerID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	referrals, err := h.Users.ListByReferrer(ctx, referrerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	views := make([]userView, 0, len(referrals))
	for _, u := range referrals {
		views = append(views, newUserView(u))
	}
	return c.JSON(http.StatusOK, views)
}

// UpdateUserInfo handles PUT /v1/users/info?email=. Fields are an
// enumerated set; the password is re-hashed and overwritten on every call,
// even when the caller submits the same value again. Keeping that write
// unconditional means the stored hash tracks the current bcrypt cost.
func (h *UserHandler) UpdateUserInfo(c echo.Context) error {
	email := c.QueryParam("email")
	if !validate.Email(email) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email must be a valid email"})
	}
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash password failed"})
	}

	tx, err := h.Users.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := h.Users.GetByEmailTx(ctx, tx, email); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	u, err := h.Users.UpdateByEmailTx(ctx, tx, email, repository.UpdateUserParams{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update user failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	return c.JSON(http.StatusOK, newUserView(u))
}

// EmailExists handles GET /v1/users/email-exists?email=. The external
// verifier decides whether the address is discoverable at all; an address
// that passes verification but has no local account is still reported as
// not found, so "deliverable" and "registered" deliberately collapse into
// one answer here.
func (h *UserHandler) EmailExists(c echo.Context) error {
	email := c.QueryParam("email")
	if !validate.Email(email) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email must be a valid email"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	if h.Verifier != nil && !h.Verifier.Exists(ctx, email) {
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": fmt.Sprintf("the user %s was not found by the emailhunter.co site", email),
		})
	}

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, newUserView(u))
}
