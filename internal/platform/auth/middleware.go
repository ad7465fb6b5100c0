package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rove-labs/rove-go/internal/platform/httpserver"
)

// Middleware rejects internal requests without a valid signature. An empty
// secret disables enforcement, for single-process and test deployments.
type Middleware struct {
	Logger       *slog.Logger
	Secret       string
	MaxSkew      time.Duration
	SkipPrefixes []string
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	if strings.TrimSpace(m.Secret) == "" {
		return next
	}
	maxSkew := m.MaxSkew
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.SkipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		if err := Verify(r, m.Secret, time.Now().UTC(), maxSkew); err != nil {
			requestID, _ := httpserver.RequestIDFromContext(r.Context())
			if m.Logger != nil {
				m.Logger.Warn("internal auth rejected",
					"request_id", requestID,
					"path", r.URL.Path,
					"error", err,
				)
			}
			httpserver.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"error": "unauthenticated",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
