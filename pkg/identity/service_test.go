package identity

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hangarhq/hangar/pkg/apperror"
)

// newTestDB creates an in-memory SQLite DB with the users table migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	store := NewUserStore(db)
	require.NoError(t, store.AutoMigrate())
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewUserStore(newTestDB(t)), Config{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	}, nil)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)

	user, err := svc.Register("Alice@Example.com", "alice", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, user.IsAdmin, "first account bootstraps as admin")
	assert.True(t, user.IsActive)
	assert.NotZero(t, user.ID)

	tok, err := svc.Login("alice@example.com", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.NotEmpty(t, tok.AccessToken)

	principal, err := svc.Authenticate(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, "alice", principal.Username)
	assert.True(t, principal.IsAdmin)
}

func TestOnlyFirstRegisteredUserIsAdmin(t *testing.T) {
	svc := newTestService(t)

	first, err := svc.Register("alice@example.com", "alice", "correct horse battery")
	require.NoError(t, err)
	assert.True(t, first.IsAdmin)

	second, err := svc.Register("bob@example.com", "bob", "correct horse battery")
	require.NoError(t, err)
	assert.False(t, second.IsAdmin)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)

	cases := []struct {
		name                      string
		email, username, password string
	}{
		{"bad email", "not-an-email", "bob", "long enough pw"},
		{"empty username", "bob@example.com", "", "long enough pw"},
		{"short password", "bob@example.com", "bob", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(tc.email, tc.username, tc.password)
			require.Error(t, err)
			assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register("carol@example.com", "carol", "password123")
	require.NoError(t, err)

	_, err = svc.Register("carol@example.com", "other", "password123")
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	_, err = svc.Register("other@example.com", "carol", "password123")
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestLoginFailures(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register("dave@example.com", "dave", "password123")
	require.NoError(t, err)

	_, err = svc.Login("dave@example.com", "wrong password")
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))

	_, err = svc.Login("nobody@example.com", "password123")
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}

func TestDeactivatedUserRejected(t *testing.T) {
	svc := newTestService(t)
	user, err := svc.Register("eve@example.com", "eve", "password123")
	require.NoError(t, err)

	tok, err := svc.Login("eve@example.com", "password123")
	require.NoError(t, err)

	inactive := false
	_, err = svc.Store().SetFlags(user.ID, &inactive, nil)
	require.NoError(t, err)

	// Deactivation takes effect for existing tokens immediately.
	_, err = svc.Authenticate(tok.AccessToken)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	// And for new logins.
	_, err = svc.Login("eve@example.com", "password123")
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}

func TestAuthenticateGarbageToken(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Authenticate("not.a.jwt")
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}

func TestUserStoreSetFlags(t *testing.T) {
	store := NewUserStore(newTestDB(t))
	record := &UserRecord{Email: "f@example.com", Username: "frank", PasswordHash: "x", IsActive: true}
	require.NoError(t, store.Create(record))

	isAdmin := true
	updated, err := store.SetFlags(record.ID, nil, &isAdmin)
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin)

	got, err := store.GetByID(record.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)
	assert.True(t, got.IsActive)

	// Unknown user: nil, nil.
	missing, err := store.SetFlags(9999, nil, &isAdmin)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
