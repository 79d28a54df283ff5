/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the reward engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file, then REWARDS_* environment overrides)
  2. Build the zap logger
  3. Open the SQLite store and wrap it in the access rules
  4. Load the activity catalog
  5. Build the captcha oracle (local challenges or generative model)
  6. Configure HTTP router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: search ./config and .)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Close redis and database connections
  4. Exit

EXAMPLES:
  # Run with defaults and a secret from the environment
  REWARDS_IDENTITY_JWT_SECRET=dev ./server

  # Run with a config file
  ./server -config=./config/config.yaml

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/oracoin/reward-engine/api"
	"github.com/oracoin/reward-engine/captcha"
	"github.com/oracoin/reward-engine/config"
	"github.com/oracoin/reward-engine/generic"
	"github.com/oracoin/reward-engine/identity"
	"github.com/oracoin/reward-engine/logging"
	"github.com/oracoin/reward-engine/rewards"
	"github.com/oracoin/reward-engine/store/rules"
	"github.com/oracoin/reward-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Path:       cfg.Log.Path,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	// Initialize store
	db, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ledger := generic.NewLedger(rules.New(db))
	ledger.Diagnostics = logging.DiagnosticSink(logger)

	catalog := rewards.DefaultCatalog()
	if cfg.Rewards.CatalogPath != "" {
		catalog, err = rewards.LoadCatalog(cfg.Rewards.CatalogPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
	}

	// Captcha oracle
	var (
		oracle     captcha.Oracle
		challenges *captcha.Challenges
	)
	switch cfg.Oracle.Mode {
	case "generative":
		oracle = captcha.NewGenerativeOracle(cfg.Oracle.Endpoint, cfg.Oracle.Model, cfg.Oracle.APIKey, cfg.Oracle.Timeout, logger)
	default:
		if cfg.Redis.Address != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Address,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()

			answers := captcha.NewRedisStore(rdb, cfg.Redis.CaptchaTTL)
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := answers.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			challenges = captcha.NewChallenges(answers)
		} else {
			challenges = captcha.NewChallenges(nil)
		}
		oracle = challenges
	}

	service := rewards.NewService(ledger, catalog, oracle, logger)
	handler := api.NewHandler(service, challenges, logger)

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		Verifier:           identity.NewVerifier(cfg.Identity.JWTSecret, cfg.Identity.Issuer),
		Logger:             logger,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", cfg.Server.Address),
			zap.String("store", cfg.Store.Path),
			zap.String("oracle", cfg.Oracle.Mode),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
