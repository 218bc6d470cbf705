package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/petstore-api/internal/auth"
	"github.com/spec-kit/petstore-api/internal/domain"
	"github.com/spec-kit/petstore-api/internal/observability"
	"github.com/spec-kit/petstore-api/internal/orm"
)

// ErrInvalidCredentials covers both an unknown email and a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// dummyHash is compared against when no user matches, so both failure paths cost one bcrypt check.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3ZQ4FqJ4m0jzFbQ5sS9e5Zi"

// LoginResult is returned on a successful login.
type LoginResult struct {
	UserID    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// AuthService verifies credentials and issues identity tokens.
type AuthService struct {
	users    orm.Client
	tokenMgr *auth.TokenManager
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	// Users is the unscoped data client; login must see every user record.
	Users   orm.Client
	Tokens  *auth.TokenManager
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:    deps.Users,
		tokenMgr: deps.Tokens,
		logger:   logger,
		metrics:  deps.Metrics,
	}
}

// Login authenticates a user by email and password. It reads only.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	rec, err := s.users.FindFirst(ctx, domain.ModelUser, orm.Where{"email": email})
	if errors.Is(err, orm.ErrNotFound) {
		_ = auth.ComparePassword(dummyHash, password)
		s.metrics.RecordLogin(observability.LoginInvalid)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.metrics.RecordLogin(observability.LoginError)
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	user := domain.UserFromRecord(rec)
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		s.metrics.RecordLogin(observability.LoginInvalid)
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID)
	if err != nil {
		s.metrics.RecordLogin(observability.LoginError)
		return nil, fmt.Errorf("sign token: %w", err)
	}

	s.metrics.RecordLogin(observability.LoginSuccess)
	s.logger.Debug("user logged in", zap.String("user_id", user.ID))
	return &LoginResult{UserID: user.ID, Email: user.Email, Token: token, ExpiresAt: exp}, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
