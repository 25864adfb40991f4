package identity

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/hangarhq/hangar/pkg/apperror"
)

type contextKey int

const (
	principalKey contextKey = iota
	observerKey
)

// PrincipalFromContext returns the caller identity resolved by
// RequireUser, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// WithPrincipal attaches a principal to the context. Exported for
// handler tests.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// principalObserver lets middleware mounted outside RequireUser read
// the identity it resolves deeper in the chain. Context values only
// flow inward, so the observer is a shared cell RequireUser fills in.
type principalObserver struct {
	mu sync.Mutex
	p  *Principal
}

// WithPrincipalObserver returns a derived context plus a getter that
// reports the principal once RequireUser has resolved one.
func WithPrincipalObserver(ctx context.Context) (context.Context, func() (*Principal, bool)) {
	obs := &principalObserver{}
	return context.WithValue(ctx, observerKey, obs), func() (*Principal, bool) {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return obs.p, obs.p != nil
	}
}

// RequireUser rejects requests without a valid bearer identity and
// stores the resolved Principal in the request context.
func (s *Service) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			apperror.WriteError(w, apperror.Unauthorized("missing bearer token"))
			return
		}
		principal, err := s.Authenticate(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		if obs, ok := r.Context().Value(observerKey).(*principalObserver); ok {
			obs.mu.Lock()
			obs.p = principal
			obs.mu.Unlock()
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireAdmin rejects non-admin identities. Must be mounted inside
// RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			apperror.WriteError(w, apperror.Unauthorized("missing bearer token"))
			return
		}
		if !principal.IsAdmin {
			apperror.WriteError(w, apperror.Forbidden("administrator access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
