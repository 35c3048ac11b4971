package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // Echo web framework used for routing
	"github.com/redis/go-redis/v9"

	"github.com/topgun312/referal-api-test/internal/config"
	"github.com/topgun312/referal-api-test/internal/handler"
	"github.com/topgun312/referal-api-test/internal/middleware"
	"github.com/topgun312/referal-api-test/internal/repository"
)

// Register wires every route of the service onto the Echo instance.
//
// Registration endpoints are open: a prospective user has no token yet.
// Everything that reads or mutates existing state sits behind the JWT
// middleware, which also resolves the caller against the users table so a
// deactivated account is cut off immediately instead of when its token
// expires. The three read-only user queries additionally go through the
// Redis response cache, keyed by route and query string with a one hour
// TTL; mutating endpoints never touch the cache, so a just-updated profile
// can be served stale until the entry expires.
func Register(e *echo.Echo, cfg config.Config, rdb *redis.Client, userRepo *repository.UserRepo,
	auth *handler.AuthHandler, users *handler.UserHandler, codes *handler.ReferralCodeHandler) {

	e.GET("/healthz", handler.Health)

	limiter := middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)

	// Session endpoints: exchange credentials or a refresh token for tokens.
	ag := e.Group("/v1/auth", limiter)
	ag.POST("/login", auth.Login)
	ag.POST("/refresh", auth.Refresh)
	ag.POST("/logout", auth.Logout)

	// Open registration flow, including referral code delivery by email and
	// finishing registration with a received code.
	ug := e.Group("/v1/users", limiter)
	ug.POST("/register", users.Register)
	ug.GET("/referral-code", users.RequestReferralCode)
	ug.POST("/register-with-code", users.RegisterWithReferralCode)

	// Profile queries and updates require an authenticated caller.
	jwt := middleware.JWTAuth(cfg.JWTSecret, userRepo)
	ug.GET("/info", users.UserInfo, jwt, cache)
	ug.PUT("/info", users.UpdateUserInfo, jwt)
	ug.GET("/referrals", users.Referrals, jwt, cache)
	ug.GET("/email-exists", users.EmailExists, jwt, cache)

	// Referral code lifecycle, owner-scoped.
	cg := e.Group("/v1/referral-codes", limiter, jwt)
	cg.POST("", codes.CreateCode)
	cg.PUT("/activate", codes.ActivateCode)
	cg.DELETE("", codes.DeleteCode)
}
