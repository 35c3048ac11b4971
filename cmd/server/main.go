package main // Entry point package

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/topgun312/referal-api-test/internal/config"
	"github.com/topgun312/referal-api-test/internal/database"
	"github.com/topgun312/referal-api-test/internal/handler"
	"github.com/topgun312/referal-api-test/internal/mailer"
	"github.com/topgun312/referal-api-test/internal/queue"
	"github.com/topgun312/referal-api-test/internal/repository"
	"github.com/topgun312/referal-api-test/internal/router"
	"github.com/topgun312/referal-api-test/internal/verifier"
	"github.com/topgun312/referal-api-test/migrations"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database failed")
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("run migrations failed")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable, response cache and rate limiting disabled")
	}

	userRepo := repository.NewUserRepo(db)
	codeRepo := repository.NewReferralCodeRepo(db)
	tokenRepo := repository.NewTokenRepo(db)

	m := mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	go queue.StartReferralEmailConsumer(m)

	vf := verifier.New(cfg.HunterAPIKey)
	if cfg.HunterAPIKey == "" {
		log.Warn().Msg("HUNTER_API_KEY unset, email existence checks pass everything")
	}

	authHandler := handler.NewAuthHandler(cfg, userRepo, tokenRepo)
	userHandler := handler.NewUserHandler(cfg, userRepo, codeRepo, vf)
	codeHandler := handler.NewReferralCodeHandler(codeRepo)

	e := echo.New()
	e.HideBanner = true
	router.Register(e, cfg, rdb, userRepo, authHandler, userHandler, codeHandler)

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
	if err := e.Start(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
