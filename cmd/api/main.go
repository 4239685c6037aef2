package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mbeneti/vitalis-auth/internal/config"
	delivery "github.com/mbeneti/vitalis-auth/internal/delivery/http"
	"github.com/mbeneti/vitalis-auth/internal/domain"
	"github.com/mbeneti/vitalis-auth/internal/gateway/smsverify"
	"github.com/mbeneti/vitalis-auth/internal/metrics"
	"github.com/mbeneti/vitalis-auth/internal/repository"
	"github.com/mbeneti/vitalis-auth/internal/usecase"
	"github.com/mbeneti/vitalis-auth/pkg/security"

	_ "github.com/lib/pq" // Postgres driver
)

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With(slog.String("service", "vitalis-auth"))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	repos := make(map[domain.Role]domain.PrincipalRepository, 3)
	for _, role := range []domain.Role{domain.RolePatient, domain.RoleDoctor, domain.RoleStaff} {
		repo, err := repository.NewPostgresPrincipalRepo(db, role)
		if err != nil {
			logger.Error("failed to build principal repository", "role", role, "err", err)
			os.Exit(1)
		}
		repos[role] = repo
	}

	challenges := repository.NewRedisChallengeRepo(rdb)
	sms := smsverify.New(cfg.SMSVerifyBaseURL, cfg.SMSVerifyToken, cfg.SMSVerifyTimeout)
	tokens := security.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)
	authMetrics := metrics.New(prometheus.DefaultRegisterer)

	authUsecase := usecase.NewAuthUsecase(repos, challenges, sms, tokens, authMetrics, logger, cfg.StepUpChallengeTTL)

	e := echo.New()
	e.HideBanner = true
	e.Validator = delivery.NewRequestValidator()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())

	v1 := e.Group("/v1")
	delivery.NewAuthHandler(v1, authUsecase, logger, cfg.Production())
	delivery.NewTwoFactorHandler(v1, authUsecase, tokens, logger, cfg.Production())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "err", err)
		os.Exit(1)
	}

	logger.Info("server exiting")
}
