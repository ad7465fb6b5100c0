// Package auth implements the signed-header scheme used on the internal
// channel between the coordinator and its workers. Requests carry a unix
// timestamp and an HMAC over (timestamp, method, path, request id); workers
// reject anything unsigned or outside the allowed clock skew.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderTimestamp = "X-Rove-Auth-Ts"
	HeaderSignature = "X-Rove-Auth-Sig"

	DefaultMaxSkew = 5 * time.Minute
)

var ErrUnauthenticated = errors.New("unauthenticated")

func ComputeSignature(secret, ts, method, path, requestID string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("internal auth secret is required")
	}
	if strings.TrimSpace(ts) == "" {
		return "", errors.New("timestamp is required")
	}
	msg := canonical(ts, method, path, requestID)
	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write([]byte(msg)); err != nil {
		return "", fmt.Errorf("hmac: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func VerifySignature(secret, ts, method, path, requestID, signature string) error {
	expected, err := ComputeSignature(secret, ts, method, path, requestID)
	if err != nil {
		return err
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return errors.New("signature is required")
	}
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New("invalid signature")
	}
	return nil
}

func VerifyTimestamp(ts string, now time.Time, maxSkew time.Duration) error {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return errors.New("timestamp is required")
	}
	parsed, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	if maxSkew <= 0 {
		return nil
	}

	tsTime := time.Unix(parsed, 0).UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if tsTime.After(now.Add(maxSkew)) || tsTime.Before(now.Add(-maxSkew)) {
		return errors.New("timestamp outside allowed skew")
	}
	return nil
}

// Sign stamps an outgoing internal request with auth headers.
func Sign(r *http.Request, secret string, now time.Time) error {
	ts := strconv.FormatInt(now.UTC().Unix(), 10)
	sig, err := ComputeSignature(secret, ts, r.Method, r.URL.Path, r.Header.Get("X-Request-Id"))
	if err != nil {
		return err
	}
	r.Header.Set(HeaderTimestamp, ts)
	r.Header.Set(HeaderSignature, sig)
	return nil
}

// Verify checks the auth headers on an incoming internal request.
func Verify(r *http.Request, secret string, now time.Time, maxSkew time.Duration) error {
	ts := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	sig := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if ts == "" || sig == "" {
		return ErrUnauthenticated
	}
	if err := VerifyTimestamp(ts, now, maxSkew); err != nil {
		return err
	}
	return VerifySignature(secret, ts, r.Method, r.URL.Path, r.Header.Get("X-Request-Id"), sig)
}

func canonical(ts, method, path, requestID string) string {
	parts := []string{
		strings.TrimSpace(ts),
		strings.ToUpper(strings.TrimSpace(method)),
		strings.TrimSpace(path),
		strings.TrimSpace(requestID),
	}
	return strings.Join(parts, "\n")
}
