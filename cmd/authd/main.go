package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	authcore "github.com/revline/authcore"
	"github.com/revline/authcore/httpapi"
	"github.com/revline/authcore/internal/events"
	"github.com/revline/authcore/internal/observability"
	"github.com/revline/authcore/internal/repository/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment as-is")
	}

	cfg := authcore.ConfigFromEnv()
	logger := observability.NewLogger(observability.ParseLevel(cfg.LogLevel))

	// A configuration the service must not run with is fatal here, before
	// any request is served.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", os.Getenv("POSTGRES_DSN"))
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		logger.Error("postgres unreachable", "error", err)
		os.Exit(1)
	}
	cancel()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer redisClient.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := envOr("KAFKA_SECURITY_TOPIC", "auth-security-events")
		kp := events.NewKafkaPublisher(strings.Split(brokers, ","), topic, logger)
		defer kp.Close()
		publisher = kp
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(redisClient).
		WithUsers(postgres.NewUserRepository(db)).
		WithPublisher(publisher).
		WithLogger(logger).
		Build()
	if err != nil {
		logger.Error("failed to build auth engine", "error", err)
		os.Exit(1)
	}

	addr := envOr("LISTEN_ADDR", ":8080")
	server := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(engine, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("auth service listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
