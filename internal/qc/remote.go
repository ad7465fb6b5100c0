package qc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rove-labs/rove-go/internal/platform/auth"
	"github.com/rove-labs/rove-go/internal/platform/httpserver"
	"github.com/rove-labs/rove-go/internal/platform/metrics"
)

// ExecutePath is the worker endpoint invocations are POSTed to.
const ExecutePath = "/execute"

const maxExecuteBodyBytes = 32 << 20

type executeRequest struct {
	Invocation Invocation `json:"invocation"`
}

// submitOutcome separates check-logic failures from transport failures:
// only the latter are surfaced to the circuit breaker as errors.
type submitOutcome struct {
	series FlagSeries
	err    error
}

// RemoteSubmitter ships invocations to worker processes over HTTP,
// round-robining across endpoints. Each endpoint has its own circuit
// breaker so one unhealthy worker does not shield the rest.
type RemoteSubmitter struct {
	endpoints []string
	breakers  map[string]*gobreaker.CircuitBreaker
	client    *http.Client
	secret    string
	next      atomic.Uint64
}

func NewRemoteSubmitter(endpoints []string, secret string, client *http.Client) (*RemoteSubmitter, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("at least one worker endpoint is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	normalized := make([]string, 0, len(endpoints))
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(endpoints))
	for _, endpoint := range endpoints {
		endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
		if endpoint == "" {
			return nil, errors.New("worker endpoint must not be empty")
		}
		normalized = append(normalized, endpoint)
		breakers[endpoint] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        endpoint,
			MaxRequests: 1,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return &RemoteSubmitter{
		endpoints: normalized,
		breakers:  breakers,
		client:    client,
		secret:    secret,
	}, nil
}

func (s *RemoteSubmitter) Submit(ctx context.Context, inv Invocation) (FlagSeries, error) {
	endpoint := s.endpoints[s.next.Add(1)%uint64(len(s.endpoints))]
	breaker := s.breakers[endpoint]

	out, err := breaker.Execute(func() (any, error) {
		return s.post(ctx, endpoint, inv)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return FlagSeries{}, &TransportError{Endpoint: endpoint, Err: err}
		}
		return FlagSeries{}, err
	}
	outcome := out.(submitOutcome)
	if outcome.err != nil {
		return FlagSeries{}, outcome.err
	}
	return outcome.series, nil
}

// post returns a non-nil error only for transport-level failures; anything
// the worker answered deliberately comes back inside the outcome.
func (s *RemoteSubmitter) post(ctx context.Context, endpoint string, inv Invocation) (any, error) {
	body, err := json.Marshal(executeRequest{Invocation: inv})
	if err != nil {
		return submitOutcome{err: fmt.Errorf("encode invocation: %w", err)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+ExecutePath, bytes.NewReader(body))
	if err != nil {
		return submitOutcome{err: fmt.Errorf("build request: %w", err)}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", inv.ID)
	if s.secret != "" {
		if err := auth.Sign(req, s.secret, time.Now()); err != nil {
			return submitOutcome{err: fmt.Errorf("sign request: %w", err)}, nil
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxExecuteBodyBytes))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var series FlagSeries
		if err := json.Unmarshal(payload, &series); err != nil {
			return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("decode response: %w", err)}
		}
		// A worker answer that does not line up with the invocation must not
		// reach the client response. Not a transport failure: retrying the
		// same invocation would get the same skewed answer.
		if series.SeriesID != inv.Target.ID {
			return submitOutcome{err: fmt.Errorf("worker %s answered for series %q, want %q",
				endpoint, series.SeriesID, inv.Target.ID)}, nil
		}
		if got, want := len(series.Flags), inv.Target.CoreLen(); got != want {
			return submitOutcome{err: fmt.Errorf("worker %s returned %d flags for series %q, want %d",
				endpoint, got, series.SeriesID, want)}, nil
		}
		return submitOutcome{series: series}, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return submitOutcome{err: &CheckError{
			Check: inv.Check,
			Err:   fmt.Errorf("worker rejected invocation: %s", strings.TrimSpace(string(payload))),
		}}, nil
	case resp.StatusCode >= 500:
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("worker returned status %d", resp.StatusCode)}
	default:
		return submitOutcome{err: fmt.Errorf("worker %s returned unexpected status %d", endpoint, resp.StatusCode)}, nil
	}
}

// ExecuteHandler is the worker-side counterpart of RemoteSubmitter. It
// answers 422 for failures inside check logic so callers know not to retry,
// and 500 only for faults worth retrying elsewhere.
func ExecuteHandler(runner *Runner, logger *slog.Logger, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpserver.WriteJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method_not_allowed"})
			return
		}

		var req executeRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxExecuteBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			httpserver.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_json"})
			return
		}

		series, err := runner.Execute(r.Context(), req.Invocation)
		if err != nil {
			var checkErr *CheckError
			if errors.As(err, &checkErr) {
				m.InvocationsTotal.WithLabelValues("check_failed").Inc()
				logger.Warn("invocation rejected",
					"invocation_id", req.Invocation.ID, "check", req.Invocation.Check, "error", err)
				httpserver.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "check_failed"})
				return
			}
			m.InvocationsTotal.WithLabelValues("error").Inc()
			logger.Error("invocation failed",
				"invocation_id", req.Invocation.ID, "check", req.Invocation.Check, "error", err)
			httpserver.WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_server_error"})
			return
		}

		m.InvocationsTotal.WithLabelValues("ok").Inc()
		httpserver.WriteJSON(w, http.StatusOK, series)
	}
}
