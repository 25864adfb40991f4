package identity

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAuthEndpoints(t *testing.T) {
	svc := newTestService(t)
	router := NewRouter(svc)

	rr := postJSON(t, router, "/register", map[string]string{
		"email":    "alice@example.com",
		"username": "alice",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var user User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	assert.Equal(t, "alice", user.Username)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = postJSON(t, router, "/login", map[string]string{
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tok))
	assert.Equal(t, "bearer", tok.TokenType)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	mr := httptest.NewRecorder()
	router.ServeHTTP(mr, req)
	require.Equal(t, http.StatusOK, mr.Code)
	var me User
	require.NoError(t, json.Unmarshal(mr.Body.Bytes(), &me))
	assert.Equal(t, user.ID, me.ID)
}

func TestMeRequiresToken(t *testing.T) {
	router := NewRouter(newTestService(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), `"kind":"unauthorized"`)
}

func TestLoginWrongPasswordStatus(t *testing.T) {
	svc := newTestService(t)
	router := NewRouter(svc)
	_, err := svc.Register("bob@example.com", "bob", "password123")
	require.NoError(t, err)

	rr := postJSON(t, router, "/login", map[string]string{
		"email":    "bob@example.com",
		"password": "nope",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
