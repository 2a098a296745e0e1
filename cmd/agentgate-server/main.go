/*-------------------------------------------------------------------------
 *
 * main.go
 *    Main entry point for AgentGate server
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/cmd/agentgate-server/main.go
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/cockpithq/agentgate/internal/api"
	"github.com/cockpithq/agentgate/internal/audit"
	"github.com/cockpithq/agentgate/internal/auth"
	"github.com/cockpithq/agentgate/internal/budget"
	"github.com/cockpithq/agentgate/internal/catalog"
	"github.com/cockpithq/agentgate/internal/config"
	"github.com/cockpithq/agentgate/internal/connector"
	"github.com/cockpithq/agentgate/internal/db"
	"github.com/cockpithq/agentgate/internal/dispatch"
	"github.com/cockpithq/agentgate/internal/idempotency"
	"github.com/cockpithq/agentgate/internal/ingest"
	"github.com/cockpithq/agentgate/internal/metrics"
	"github.com/cockpithq/agentgate/internal/resilience"
	"github.com/cockpithq/agentgate/internal/run"
	"github.com/cockpithq/agentgate/internal/signature"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	var (
		showVersion    = flag.Bool("version", false, "Show version information")
		configPath     = flag.String("c", "", "Path to configuration file")
		configPathLong = flag.String("config", "", "Path to configuration file")
		showHelp       = flag.Bool("help", false, "Show help message")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "AgentGate Server - agent execution orchestrator\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                    Start server with default configuration\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml     Start server with custom config file\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nConfiguration:\n")
		fmt.Fprintf(os.Stderr, "  Configuration can be provided via:\n")
		fmt.Fprintf(os.Stderr, "  - Command line flag: -c or --config\n")
		fmt.Fprintf(os.Stderr, "  - Environment variable: CONFIG_PATH\n")
		fmt.Fprintf(os.Stderr, "  - Environment variables (see config package for details)\n")
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("agentgate version %s\n", version)
		fmt.Printf("Build date: %s\n", buildDate)
		fmt.Printf("Git commit: %s\n", gitCommit)
		os.Exit(0)
	}
	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	/* Load configuration */
	cfg := config.DefaultConfig()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = *configPathLong
	}
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}

	if cfgPath != "" {
		var err error
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
			os.Exit(1)
		}
	} else {
		config.LoadFromEnv(cfg)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	/* Initialize logging */
	metrics.InitLogging(cfg.Logging.Level, cfg.Logging.Format)

	/* Load the agent catalog. A server without a valid catalog cannot
	 * admit anything, so this fails fast. */
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load agent catalog from %s: %v\n", cfg.Catalog.Path, err)
		os.Exit(1)
	}

	/* Assemble stores. Without a database the server runs entirely in
	 * process, which fits single-node and test deployments. */
	var (
		sink     audit.Sink
		registry run.Registry
		idem     idempotency.Store
		ledger   budget.Ledger
		database *db.DB
	)
	if cfg.Database.Host != "" {
		connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Database)

		database, err = db.NewDB(connStr, db.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: Failed to connect to database: %v\n", err)
			os.Exit(1)
		}
		defer database.Close()

		migrationRunner, err := db.NewMigrationRunner(database.DB, "./migrations")
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: Failed to open migrations directory: %v\n", err)
			os.Exit(1)
		}
		if err := migrationRunner.Run(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: Migration failed: %v\n", err)
			os.Exit(1)
		}

		queries := db.NewQueries(database.DB)
		queries.SetConnInfoFunc(database.GetConnInfoString)

		sink = db.NewPGAuditSink(queries)
		registry = db.NewPGRegistry(queries, sink)
		idem = db.NewPGIdempotencyStore(queries, cfg.Budget.IdempotencyTTL)
		ledger = db.NewPGLedger(queries, cat)
	} else {
		sink = audit.NewLogSink()
		registry = run.NewMemoryRegistry(sink)
		idem = idempotency.NewMemoryStore(cfg.Budget.IdempotencyTTL)
		ledger = budget.NewMemoryLedger(cat)
	}

	/* Resilience layer */
	breakers := resilience.NewBreakerManager(resilience.BreakerConfig{
		FailureThreshold:     cfg.Resilience.FailureThreshold,
		FailureRateThreshold: cfg.Resilience.FailureRateThreshold,
		MinimumSamples:       cfg.Resilience.MinimumSamples,
		RecoveryTimeout:      cfg.Resilience.RecoveryTimeout,
		WindowSize:           cfg.Resilience.WindowSize,
	})
	health := resilience.NewHealthTracker(breakers)

	/* Dispatch pipeline */
	executor := connector.NewHTTPClient(cfg.Dispatch.ExecutorBaseURL, cfg.Security.WebhookSecret)
	dispatcher := dispatch.NewDispatcher(cat, idem, ledger,
		budget.NewEstimator(cfg.Budget.BaseRateEUR), registry, sink, executor, breakers, health,
		dispatch.Options{
			Workers:   cfg.Dispatch.Workers,
			QueueSize: cfg.Dispatch.QueueSize,
			Timeout:   cfg.Dispatch.Timeout,
			Retry: resilience.RetryConfig{
				MaxRetries:   cfg.Resilience.MaxRetries,
				InitialDelay: cfg.Resilience.InitialDelay,
				MaxDelay:     cfg.Resilience.MaxDelay,
				Multiplier:   cfg.Resilience.BackoffMultiplier,
				IsRetryable:  resilience.IsRetryableError,
			},
		})
	dispatcher.Start()
	defer dispatcher.Stop()

	ingestor := ingest.NewIngestor(idem, registry)

	/* Expired idempotency keys are evicted in the background */
	sweeper := idempotency.NewSweeper(idem, cfg.Budget.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	/* Initialize API */
	handlers := api.NewHandlers(cat, dispatcher, ingestor, registry, ledger, health,
		signature.NewVerifier(cfg.Security.TriggerSecret, cfg.Security.MaxSkewSeconds),
		signature.NewVerifier(cfg.Security.WebhookSecret, cfg.Security.MaxSkewSeconds))
	keychain := auth.NewKeychain(cfg.Security.APIKeyHashes)

	/* Setup router */
	router := mux.NewRouter()
	router.Use(api.RequestIDMiddleware)
	router.Use(api.SecurityHeadersMiddleware)
	router.Use(api.CORSMiddleware)
	router.Use(api.LoggingMiddleware)
	router.Use(api.AuthMiddleware(keychain))

	api.RegisterRoutes(router, handlers)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if database != nil {
			if err := database.HealthCheck(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status": "unhealthy"}`)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": "ok"}`)
	}).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	/* Start server */
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	/* Graceful shutdown */
	go func() {
		fmt.Printf("Server starting on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "FATAL: Server failed to start on %s: %v\n", addr, err)
			os.Exit(1)
		}
	}()

	/* Wait for interrupt signal */
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		fmt.Printf("Server forced to shutdown: %v\n", err)
	}

	fmt.Println("Server exited")
}
