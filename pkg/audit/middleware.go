package audit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hangarhq/hangar/pkg/identity"
)

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// Middleware records every mutating request that passes through it.
// Reads are never recorded. Writes are best-effort: a failed insert
// logs a warning and the response is unaffected.
func Middleware(store *Store, cfg Config, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || store == nil || !isMutation(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()
			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}

			// RequireUser runs inside the mounted routers, on a derived
			// request this middleware never sees. The observer lets it
			// report the resolved identity back out.
			ctx, resolvedPrincipal := identity.WithPrincipalObserver(r.Context())
			r = r.WithContext(ctx)
			next.ServeHTTP(capture, r)

			outcome := outcomeFromStatus(capture.statusCode)
			if outcome == "denied" && !cfg.LogDenied {
				return
			}

			var actorID uint
			actorName := "anonymous"
			if p, ok := resolvedPrincipal(); ok {
				actorID = p.UserID
				actorName = p.Username
			} else if p, ok := identity.PrincipalFromContext(r.Context()); ok {
				actorID = p.UserID
				actorName = p.Username
			}

			resourceType, resourceID := extractResource(r.URL.Path)

			event := &Event{
				ID:           uuid.New().String(),
				ActorID:      actorID,
				ActorName:    actorName,
				Action:       actionVerb(r.Method, r.URL.Path),
				ResourceType: resourceType,
				ResourceID:   resourceID,
				Outcome:      outcome,
				StatusCode:   capture.statusCode,
				Method:       r.Method,
				Path:         r.URL.Path,
				RequestID:    middleware.GetReqID(r.Context()),
				RemoteAddr:   r.RemoteAddr,
				Duration:     time.Since(startTime).String(),
				CreatedAt:    startTime,
			}

			if err := store.Append(event); err != nil {
				logger.Warn("failed to write audit event",
					"error", err, "requestID", event.RequestID)
			}
		})
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "success"
	case code == http.StatusForbidden, code == http.StatusUnauthorized:
		return "denied"
	default:
		return "error"
	}
}
