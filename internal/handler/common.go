package handler // handler defines http handlers

import (
	"errors"  // errors provides the sentinel used in getUserID
	"strconv" // strconv converts strings to numeric types
	"time"

	"github.com/labstack/echo/v4" // echo defines request context types

	"github.com/topgun312/referal-api-test/internal/repository"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
// The JWT middleware stores the subject claim under "user_id"; depending on
// how the JSON number was decoded it can arrive as several numeric types.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// codeView is the client-facing shape of a referral code.
type codeView struct {
	ID       uint64 `json:"id"`
	Code     uint64 `json:"code"`
	ExpDate  string `json:"exp_date"`
	IsActive bool   `json:"is_active"`
}

func newCodeView(rc repository.ReferralCode) codeView {
	return codeView{
		ID:       rc.ID,
		Code:     rc.Code,
		ExpDate:  rc.ExpiresOn.Format("2006-01-02"),
		IsActive: rc.IsActive,
	}
}

// userView is the client-facing shape of a user. The password hash is
// deliberately absent. ReferralCodes is only populated on the full profile
// endpoint.
type userView struct {
	ID            uint64     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	IsActive      bool       `json:"is_active"`
	ReferredBy    uint64     `json:"referred_by"`
	RegisteredAt  time.Time  `json:"registered_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ReferralCodes []codeView `json:"referal_codes,omitempty"`
}

func newUserView(u repository.User) userView {
	return userView{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		IsActive:     u.IsActive,
		ReferredBy:   u.ReferredBy,
		RegisteredAt: u.RegisteredAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
