package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rove-labs/rove-go/internal/connectors/archive"
	pgconnector "github.com/rove-labs/rove-go/internal/connectors/postgres"
	"github.com/rove-labs/rove-go/internal/platform/env"
	"github.com/rove-labs/rove-go/internal/platform/httpserver"
	"github.com/rove-labs/rove-go/internal/platform/metrics"
	"github.com/rove-labs/rove-go/internal/platform/postgres"
	"github.com/rove-labs/rove-go/internal/qc"
	"github.com/rove-labs/rove-go/internal/qc/checks"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("ROVE_COORDINATOR_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("ROVE_COORDINATOR_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	requestTimeout, err := env.Duration("ROVE_REQUEST_TIMEOUT", time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	maxInFlight, err := env.Int("ROVE_MAX_IN_FLIGHT", 16)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	retries, err := env.Int("ROVE_DISPATCH_RETRIES", 2)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	retryBackoff, err := env.Duration("ROVE_DISPATCH_RETRY_BACKOFF", 100*time.Millisecond)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	registry := checks.Default()

	pipelineDir := env.String("ROVE_PIPELINE_DIR", "sample_pipelines")
	pipelines, err := qc.LoadPipelines(pipelineDir, registry)
	if err != nil {
		logger.Error("invalid pipeline config", "dir", pipelineDir, "error", err)
		os.Exit(2)
	}
	resolver := qc.NewResolver(pipelines)
	logger.Info("pipelines loaded", "dir", pipelineDir, "names", resolver.Names())

	m := metrics.New("coordinator")

	sources := make(map[string]qc.Connector)
	readiness := []httpserver.ReadinessCheck{}

	usePostgres, err := env.Bool("ROVE_SOURCE_POSTGRES_ENABLED", true)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	if usePostgres {
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid database config", "error", err)
			os.Exit(2)
		}
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		name := env.String("ROVE_SOURCE_POSTGRES_NAME", "met")
		sources[name] = pgconnector.New(db)
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		})
	}

	useArchive, err := env.Bool("ROVE_SOURCE_ARCHIVE_ENABLED", false)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	if useArchive {
		archiveCfg, err := archive.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid archive config", "error", err)
			os.Exit(2)
		}
		archiveClient, err := archive.NewClient(archiveCfg)
		if err != nil {
			logger.Error("archive client init failed", "error", err)
			os.Exit(2)
		}
		name := env.String("ROVE_SOURCE_ARCHIVE_NAME", "archive")
		sources[name] = archive.New(archiveClient, archiveCfg)
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name: "archive",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				exists, err := archiveClient.BucketExists(checkCtx, archiveCfg.Bucket)
				if err != nil {
					return err
				}
				if !exists {
					return errors.New("archive bucket missing")
				}
				return nil
			},
		})
	}
	if len(sources) == 0 {
		logger.Error("no data sources enabled")
		os.Exit(2)
	}

	var submitter qc.Submitter
	workerURLs := env.Strings("ROVE_WORKER_URLS", nil)
	if len(workerURLs) > 0 {
		secret := env.String("ROVE_INTERNAL_AUTH_SECRET", "")
		remote, err := qc.NewRemoteSubmitter(workerURLs, secret, nil)
		if err != nil {
			logger.Error("invalid worker config", "error", err)
			os.Exit(2)
		}
		submitter = remote
		logger.Info("dispatching to workers", "workers", len(workerURLs))
	} else {
		submitter = qc.NewLocalSubmitter(qc.NewRunner(registry, logger))
		logger.Info("dispatching in-process")
	}

	planner := qc.NewPlanner(qc.NewDataSwitch(sources), logger, m)
	dispatcher := qc.NewDispatcher(submitter, qc.DispatcherConfig{
		MaxInFlight:  maxInFlight,
		Retries:      retries,
		RetryBackoff: retryBackoff,
	}, logger, m)
	scheduler := qc.NewScheduler(resolver, planner, dispatcher, logger, m)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("coordinator"))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks("coordinator", readiness...))
	mux.Handle("GET /metrics", m.Handler())

	api := newCoordinatorAPI(logger, scheduler, resolver, requestTimeout)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         "coordinator",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "coordinator", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
