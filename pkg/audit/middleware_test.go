package audit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hangarhq/hangar/pkg/identity"
)

func newAuditedHandler(t *testing.T, cfg Config, status int) (*Store, http.Handler) {
	t.Helper()
	store := newTestStore(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	mw := Middleware(store, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return store, mw(inner)
}

func doRequest(handler http.Handler, method, path string, principal *identity.Principal) {
	req := httptest.NewRequest(method, path, nil)
	if principal != nil {
		req = req.WithContext(identity.WithPrincipal(req.Context(), principal))
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestMiddlewareRecordsMutation(t *testing.T) {
	store, handler := newAuditedHandler(t, DefaultConfig(), http.StatusCreated)

	doRequest(handler, "POST", "/api/apps", &identity.Principal{UserID: 7, Username: "dev"})

	list, err := store.List(ListFilter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	event := list.Items[0]
	assert.Equal(t, uint(7), event.ActorID)
	assert.Equal(t, "dev", event.ActorName)
	assert.Equal(t, "create", event.Action)
	assert.Equal(t, "app", event.ResourceType)
	assert.Equal(t, "success", event.Outcome)
	assert.Equal(t, http.StatusCreated, event.StatusCode)
}

// The audit middleware is mounted outside RequireUser in the server,
// so the principal lives on a derived request it never sees directly.
// This exercises the observer path with the real auth middleware.
func TestMiddlewareSeesActorResolvedInsideChain(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	userStore := identity.NewUserStore(gdb)
	require.NoError(t, userStore.AutoMigrate())
	ids := identity.NewService(userStore, identity.Config{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err = ids.Register("dev@example.com", "dev", "hunter2hunter2")
	require.NoError(t, err)
	tok, err := ids.Login("dev@example.com", "hunter2hunter2")
	require.NoError(t, err)

	store := newTestStore(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	handler := Middleware(store, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))(ids.RequireUser(inner))

	req := httptest.NewRequest("POST", "/api/apps", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	list, err := store.List(ListFilter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "dev", list.Items[0].ActorName)
	assert.NotZero(t, list.Items[0].ActorID)
	assert.Equal(t, "success", list.Items[0].Outcome)
}

func TestMiddlewareIgnoresReads(t *testing.T) {
	store, handler := newAuditedHandler(t, DefaultConfig(), http.StatusOK)

	doRequest(handler, "GET", "/api/apps", nil)

	list, err := store.List(ListFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestMiddlewareDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	store, handler := newAuditedHandler(t, cfg, http.StatusOK)

	doRequest(handler, "DELETE", "/api/apps/1", nil)

	list, err := store.List(ListFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestMiddlewareDeniedOutcome(t *testing.T) {
	store, handler := newAuditedHandler(t, DefaultConfig(), http.StatusForbidden)

	doRequest(handler, "DELETE", "/api/admin/apps/3", nil)

	list, err := store.List(ListFilter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "denied", list.Items[0].Outcome)
	assert.Equal(t, "anonymous", list.Items[0].ActorName)
}

func TestMiddlewareSkipsDeniedWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogDenied = false
	store, handler := newAuditedHandler(t, cfg, http.StatusForbidden)

	doRequest(handler, "PATCH", "/api/admin/users/2", nil)

	list, err := store.List(ListFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestExtractResource(t *testing.T) {
	tests := []struct {
		path     string
		wantType string
		wantID   string
	}{
		{"/api/apps", "app", ""},
		{"/api/apps/12", "app", "12"},
		{"/api/apps/12/versions", "app", "12"},
		{"/api/versions/9/publish", "version", "9"},
		{"/api/admin/users/4", "user", "4"},
		{"/api/admin/apps/3/toggle-public", "app", "3"},
		{"/api/auth/login", "", ""},
	}
	for _, tt := range tests {
		gotType, gotID := extractResource(tt.path)
		assert.Equal(t, tt.wantType, gotType, tt.path)
		assert.Equal(t, tt.wantID, gotID, tt.path)
	}
}

func TestActionVerb(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"POST", "/api/apps", "create"},
		{"POST", "/api/apps/find-or-create", "find-or-create"},
		{"POST", "/api/apps/1/versions", "upload"},
		{"PATCH", "/api/versions/2/publish", "publish"},
		{"PATCH", "/api/admin/apps/3/toggle-public", "toggle-public"},
		{"PATCH", "/api/versions/2", "update"},
		{"DELETE", "/api/apps/1", "delete"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, actionVerb(tt.method, tt.path), tt.method+" "+tt.path)
	}
}
