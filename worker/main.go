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

	"github.com/rove-labs/rove-go/internal/platform/auth"
	"github.com/rove-labs/rove-go/internal/platform/env"
	"github.com/rove-labs/rove-go/internal/platform/httpserver"
	"github.com/rove-labs/rove-go/internal/platform/metrics"
	"github.com/rove-labs/rove-go/internal/qc"
	"github.com/rove-labs/rove-go/internal/qc/checks"
)

// newWorkerHandler builds the worker's routed handler: the execute endpoint
// behind internal auth, health and metrics endpoints open.
func newWorkerHandler(logger *slog.Logger, m *metrics.Metrics, secret string) http.Handler {
	runner := qc.NewRunner(checks.Default(), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("worker"))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks("worker"))
	mux.Handle("GET /metrics", m.Handler())
	mux.Handle("POST "+qc.ExecutePath, qc.ExecuteHandler(runner, logger, m))

	return auth.Middleware{
		Logger:       logger,
		Secret:       secret,
		SkipPrefixes: []string{"/healthz", "/readyz", "/metrics"},
	}.Wrap(mux)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("ROVE_WORKER_HTTP_ADDR", ":8081")
	shutdownTimeout, err := env.Duration("ROVE_WORKER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	secret := env.String("ROVE_INTERNAL_AUTH_SECRET", "")
	if secret == "" {
		logger.Warn("internal auth disabled, accepting unsigned execute requests")
	}

	m := metrics.New("worker")
	handler := newWorkerHandler(logger, m, secret)

	cfg := httpserver.Config{
		Service:         "worker",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "worker", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
