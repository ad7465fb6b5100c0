package qc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rove-labs/rove-go/internal/platform/auth"
)

func executeServer(t *testing.T, registry CapabilityRegistry, secret string) *httptest.Server {
	t.Helper()
	runner := NewRunner(registry, discardLogger())
	var handler http.Handler = ExecuteHandler(runner, discardLogger(), testMetrics())
	handler = auth.Middleware{Logger: discardLogger(), Secret: secret}.Wrap(handler)
	mux := http.NewServeMux()
	mux.Handle(ExecutePath, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteSubmit_RoundTrip(t *testing.T) {
	registry := fakeRegistry{"range_check": &fakeCapability{
		name: "range_check",
		eval: func(values []*float64, idx int, context []Series, p Params) (Flag, error) {
			if *values[idx] > 10 {
				return FlagFail, nil
			}
			return FlagPass, nil
		},
	}}
	srv := executeServer(t, registry, "")

	submitter, err := NewRemoteSubmitter([]string{srv.URL}, "", srv.Client())
	if err != nil {
		t.Fatalf("NewRemoteSubmitter: %v", err)
	}
	series, err := submitter.Submit(context.Background(), Invocation{
		ID:     "inv-1",
		Check:  "range_check",
		Target: Series{ID: "18700", Values: []*float64{ptrFloat(5), nil, ptrFloat(12)}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	want := []Flag{FlagPass, FlagDataMissing, FlagFail}
	if len(series.Flags) != len(want) {
		t.Fatalf("flags=%v, want %v", series.Flags, want)
	}
	for i := range want {
		if series.Flags[i] != want[i] {
			t.Fatalf("flags=%v, want %v", series.Flags, want)
		}
	}
}

func TestRemoteSubmit_SignedWhenSecretConfigured(t *testing.T) {
	const secret = "internal-secret"
	registry := fakeRegistry{"range_check": &fakeCapability{name: "range_check"}}
	srv := executeServer(t, registry, secret)

	unsigned, err := NewRemoteSubmitter([]string{srv.URL}, "", srv.Client())
	if err != nil {
		t.Fatalf("NewRemoteSubmitter: %v", err)
	}
	inv := Invocation{ID: "inv-1", Check: "range_check", Target: Series{ID: "x", Values: []*float64{ptrFloat(1)}}}
	if _, err := unsigned.Submit(context.Background(), inv); err == nil {
		t.Fatal("unsigned submit accepted, want rejection")
	}

	signed, err := NewRemoteSubmitter([]string{srv.URL}, secret, srv.Client())
	if err != nil {
		t.Fatalf("NewRemoteSubmitter: %v", err)
	}
	if _, err := signed.Submit(context.Background(), inv); err != nil {
		t.Fatalf("signed submit: %v", err)
	}
}

func TestRemoteSubmit_CheckFailureIsNotRetryable(t *testing.T) {
	srv := executeServer(t, fakeRegistry{}, "")

	submitter, err := NewRemoteSubmitter([]string{srv.URL}, "", srv.Client())
	if err != nil {
		t.Fatalf("NewRemoteSubmitter: %v", err)
	}
	_, err = submitter.Submit(context.Background(), Invocation{
		ID:     "inv-1",
		Check:  "unregistered",
		Target: Series{ID: "x", Values: []*float64{ptrFloat(1)}},
	})
	var checkErr *CheckError
	if !errors.As(err, &checkErr) {
		t.Fatalf("err=%v, want CheckError from 422", err)
	}
	if IsTransport(err) {
		t.Fatalf("err=%v must not look retryable", err)
	}
}

func TestRemoteSubmit_MisalignedWorkerResponseRejected(t *testing.T) {
	cases := []struct {
		name   string
		series FlagSeries
	}{
		{"short flag sequence", FlagSeries{SeriesID: "x", Flags: []Flag{FlagPass}}},
		{"wrong series id", FlagSeries{SeriesID: "y", Flags: []Flag{FlagPass, FlagPass, FlagPass}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				if err := json.NewEncoder(w).Encode(tc.series); err != nil {
					t.Errorf("encode response: %v", err)
				}
			}))
			t.Cleanup(srv.Close)

			submitter, err := NewRemoteSubmitter([]string{srv.URL}, "", srv.Client())
			if err != nil {
				t.Fatalf("NewRemoteSubmitter: %v", err)
			}
			_, err = submitter.Submit(context.Background(), Invocation{
				ID:     "inv-1",
				Check:  "range_check",
				Target: Series{ID: "x", Values: []*float64{ptrFloat(1), ptrFloat(2), ptrFloat(3)}},
			})
			if err == nil {
				t.Fatal("mismatched worker answer accepted")
			}
			if IsTransport(err) {
				t.Fatalf("err=%v must not look retryable", err)
			}
		})
	}
}

func TestRemoteSubmit_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	submitter, err := NewRemoteSubmitter([]string{srv.URL}, "", srv.Client())
	if err != nil {
		t.Fatalf("NewRemoteSubmitter: %v", err)
	}
	_, err = submitter.Submit(context.Background(), Invocation{ID: "inv-1", Check: "range_check"})
	if !IsTransport(err) {
		t.Fatalf("err=%v, want TransportError for a 5xx", err)
	}
}

func TestRemoteSubmit_ConnectionFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	submitter, err := NewRemoteSubmitter([]string{url}, "", nil)
	if err != nil {
		t.Fatalf("NewRemoteSubmitter: %v", err)
	}
	_, err = submitter.Submit(context.Background(), Invocation{ID: "inv-1", Check: "range_check"})
	if !IsTransport(err) {
		t.Fatalf("err=%v, want TransportError for a refused connection", err)
	}
}

func TestRemoteSubmit_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	submitter, err := NewRemoteSubmitter([]string{srv.URL}, "", srv.Client())
	if err != nil {
		t.Fatalf("NewRemoteSubmitter: %v", err)
	}
	inv := Invocation{ID: "inv-1", Check: "range_check"}
	for i := 0; i < 10; i++ {
		if _, err := submitter.Submit(context.Background(), inv); !IsTransport(err) {
			t.Fatalf("submit %d: err=%v, want TransportError", i, err)
		}
	}
	// After 5 consecutive failures the breaker opens and stops hitting the worker.
	if hits >= 10 {
		t.Fatalf("worker hits=%d, want breaker to cut them off", hits)
	}
}

func TestRemoteSubmit_RoundRobinAcrossWorkers(t *testing.T) {
	var aHits, bHits int
	registry := fakeRegistry{"range_check": &fakeCapability{name: "range_check"}}
	runner := NewRunner(registry, discardLogger())
	handler := ExecuteHandler(runner, discardLogger(), testMetrics())

	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		aHits++
		handler(w, r)
	}))
	t.Cleanup(srvA.Close)
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bHits++
		handler(w, r)
	}))
	t.Cleanup(srvB.Close)

	submitter, err := NewRemoteSubmitter([]string{srvA.URL, srvB.URL}, "", nil)
	if err != nil {
		t.Fatalf("NewRemoteSubmitter: %v", err)
	}
	inv := Invocation{ID: "inv-1", Check: "range_check", Target: Series{ID: "x", Values: []*float64{ptrFloat(1)}}}
	for i := 0; i < 4; i++ {
		if _, err := submitter.Submit(context.Background(), inv); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if aHits != 2 || bHits != 2 {
		t.Fatalf("hits a=%d b=%d, want 2 each", aHits, bHits)
	}
}
