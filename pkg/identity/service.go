package identity

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/hangarhq/hangar/pkg/apperror"
)

// Config holds the identity service settings.
type Config struct {
	// JWTSecret signs HS256 bearer tokens. Required.
	JWTSecret string
	// TokenTTL bounds token lifetime. Defaults to 24h.
	TokenTTL time.Duration
}

// Service implements registration, login, and bearer-token
// verification.
type Service struct {
	store  *UserStore
	cfg    Config
	logger *slog.Logger
}

// NewService creates an identity Service.
func NewService(store *UserStore, cfg Config, logger *slog.Logger) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cfg: cfg, logger: logger}
}

// Store exposes the underlying user store for admin reporting.
func (s *Service) Store() *UserStore { return s.store }

// claims is the JWT payload.
type claims struct {
	UserID  uint `json:"uid"`
	IsAdmin bool `json:"adm"`
	jwt.RegisteredClaims
}

// Register creates a new user account.
func (s *Service) Register(email, username, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)

	if !strings.Contains(email, "@") || len(email) > 120 {
		return nil, apperror.Validation("email is not valid")
	}
	if username == "" || len(username) > 64 {
		return nil, apperror.Validation("username must be 1-64 characters")
	}
	if len(password) < 8 {
		return nil, apperror.Validation("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Internal(err, "hash password")
	}

	// The first account bootstraps the instance and starts as admin;
	// everyone after that is a regular user.
	total, err := s.store.Count()
	if err != nil {
		return nil, apperror.Internal(err, "count users")
	}

	record := &UserRecord{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		IsActive:     true,
		IsAdmin:      total == 0,
	}
	if err := s.store.Create(record); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Conflict("email or username is already registered")
		}
		return nil, apperror.Internal(err, "create user")
	}

	s.logger.Info("user registered", "user_id", record.ID, "username", record.Username)
	user := record.ToAPI()
	return &user, nil
}

// Login verifies credentials and issues a bearer token. Credential
// failures and deactivated accounts report the same unauthorized error
// so login cannot probe which accounts exist.
func (s *Service) Login(email, password string) (*TokenResponse, error) {
	record, err := s.store.GetByEmail(strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return nil, apperror.Internal(err, "look up user")
	}
	if record == nil || !record.IsActive {
		return nil, apperror.Unauthorized("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)) != nil {
		return nil, apperror.Unauthorized("invalid credentials")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:  record.ID,
		IsAdmin: record.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	})
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, apperror.Internal(err, "sign token")
	}

	return &TokenResponse{AccessToken: signed, TokenType: "bearer"}, nil
}

// Authenticate parses a bearer token and resolves it to a live
// Principal. The user row is re-read so deactivation and admin-flag
// changes take effect immediately, not at token expiry.
func (s *Service) Authenticate(tokenString string) (*Principal, error) {
	var cl claims
	token, err := jwt.ParseWithClaims(tokenString, &cl, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperror.Unauthorized("invalid or expired token")
	}

	record, err := s.store.GetByID(cl.UserID)
	if err != nil {
		return nil, apperror.Internal(err, "load token user")
	}
	if record == nil {
		return nil, apperror.Unauthorized("invalid or expired token")
	}
	if !record.IsActive {
		return nil, apperror.Forbidden("account is deactivated")
	}

	return &Principal{
		UserID:   record.ID,
		Username: record.Username,
		IsAdmin:  record.IsAdmin,
	}, nil
}

// EnsureAdmin bootstraps an admin account with the given credentials.
// Existing accounts are promoted to admin if needed; their password is
// left alone. Reports whether a new account was created.
func (s *Service) EnsureAdmin(email, password string) (bool, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	existing, err := s.store.GetByEmail(email)
	if err != nil {
		return false, apperror.Internal(err, "look up admin account")
	}
	if existing != nil {
		if existing.IsAdmin {
			return false, nil
		}
		isAdmin := true
		if _, err := s.store.SetFlags(existing.ID, nil, &isAdmin); err != nil {
			return false, apperror.Internal(err, "promote admin account")
		}
		s.logger.Info("promoted existing account to admin", "user_id", existing.ID)
		return false, nil
	}

	username := email
	if at := strings.Index(email, "@"); at > 0 {
		username = email[:at]
	}
	if len(password) < 8 {
		return false, apperror.Validation("admin password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, apperror.Internal(err, "hash admin password")
	}
	record := &UserRecord{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		IsAdmin:      true,
		IsActive:     true,
	}
	if err := s.store.Create(record); err != nil {
		return false, apperror.Internal(err, "create admin account")
	}
	return true, nil
}

// GetUser returns the API shape for a user id.
func (s *Service) GetUser(id uint) (*User, error) {
	record, err := s.store.GetByID(id)
	if err != nil {
		return nil, apperror.Internal(err, "load user")
	}
	if record == nil {
		return nil, apperror.NotFound("user %d does not exist", id)
	}
	user := record.ToAPI()
	return &user, nil
}
