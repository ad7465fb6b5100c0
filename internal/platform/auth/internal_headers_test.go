package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	req := httptest.NewRequest("POST", "http://worker.test/execute", nil)
	req.Header.Set("X-Request-Id", "rid-1")

	now := time.Unix(1700000000, 0).UTC()
	if err := Sign(req, "s3cret", now); err != nil {
		t.Fatalf("Sign() err=%v", err)
	}
	if err := Verify(req, "s3cret", now, DefaultMaxSkew); err != nil {
		t.Fatalf("Verify() err=%v", err)
	}
	if err := Verify(req, "wrong", now, DefaultMaxSkew); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

func TestVerify_SkewRejected(t *testing.T) {
	req := httptest.NewRequest("POST", "http://worker.test/execute", nil)
	signed := time.Unix(1700000000, 0).UTC()
	if err := Sign(req, "s3cret", signed); err != nil {
		t.Fatalf("Sign() err=%v", err)
	}
	late := signed.Add(time.Hour)
	if err := Verify(req, "s3cret", late, DefaultMaxSkew); err == nil {
		t.Fatalf("expected skew rejection")
	}
}

func TestVerify_MissingHeaders(t *testing.T) {
	req := httptest.NewRequest("POST", "http://worker.test/execute", nil)
	if err := Verify(req, "s3cret", time.Now().UTC(), DefaultMaxSkew); err != ErrUnauthenticated {
		t.Fatalf("err=%v, want ErrUnauthenticated", err)
	}
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware{Logger: logger, Secret: "s3cret", SkipPrefixes: []string{"/healthz"}}.Wrap(inner)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "http://worker.test/execute", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned status=%d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "http://worker.test/healthz", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("healthz status=%d, want 204", rec.Code)
	}

	req := httptest.NewRequest("POST", "http://worker.test/execute", nil)
	if err := Sign(req, "s3cret", time.Now().UTC()); err != nil {
		t.Fatalf("Sign() err=%v", err)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("signed status=%d, want 204", rec.Code)
	}
}

func TestMiddleware_DisabledWithoutSecret(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware{}.Wrap(inner)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "http://worker.test/execute", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d, want 204", rec.Code)
	}
}
