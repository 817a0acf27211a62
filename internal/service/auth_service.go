package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/headcorn/dashboard-api/internal/auth"
	"github.com/headcorn/dashboard-api/internal/config"
	"github.com/headcorn/dashboard-api/internal/crm"
	"github.com/headcorn/dashboard-api/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserStore persists dashboard accounts
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateFullName(ctx context.Context, id uuid.UUID, fullName, crmID string) error
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// IdentityResolver resolves an email to a CRM identity
type IdentityResolver interface {
	LookupByEmail(ctx context.Context, email string) (*crm.User, error)
}

// TokenIssuer mints access tokens
type TokenIssuer interface {
	Issue(user *domain.User) (string, time.Time, error)
}

// AuthService implements email check, registration, login and password changes
type AuthService struct {
	users    UserStore
	identity IdentityResolver
	tokens   TokenIssuer
	cfg      config.AuthConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewAuthService(users UserStore, identity IdentityResolver, tokens TokenIssuer, cfg *config.AuthConfig, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:    users,
		identity: identity,
		tokens:   tokens,
		cfg:      *cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckEmail reports the identity behind an email and whether it has an account.
// Registered users are answered from the local record without calling the CRM.
func (s *AuthService) CheckEmail(ctx context.Context, email string) (*domain.CheckEmailResponse, error) {
	email = domain.NormalizeEmail(email)

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return &domain.CheckEmailResponse{
			Email:      existing.Email,
			FullName:   existing.FullName,
			CRMID:      existing.CRMID,
			Registered: true,
		}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	resolved, err := s.resolve(ctx, email)
	if err != nil {
		return nil, err
	}
	return &domain.CheckEmailResponse{
		Email:    email,
		FullName: resolved.DisplayName(),
		CRMID:    resolved.ID,
	}, nil
}

// Register creates an account for a CRM user and logs them in
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.LoginResponse, error) {
	email := domain.NormalizeEmail(req.Email)
	if err := s.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	resolved, err := s.resolve(ctx, email)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     resolved.DisplayName(),
		CRMID:        resolved.ID,
		LastLoginAt:  &now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email),
		zap.String("full_name", user.FullName),
	)
	return s.loginResponse(user)
}

// Login verifies the password and issues an access token
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	email := domain.NormalizeEmail(req.Email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		s.logger.Warn("login failed: wrong password", zap.String("email", email))
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record login time", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	user.LastLoginAt = &now

	s.logger.Info("user logged in", zap.String("email", email), zap.String("full_name", user.FullName))
	return s.loginResponse(user)
}

// ChangePassword replaces the password of the authenticated user
func (s *AuthService) ChangePassword(ctx context.Context, email string, req *domain.ChangePasswordRequest) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotRegistered
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	if !auth.VerifyPassword(user.PasswordHash, req.CurrentPassword) {
		return ErrInvalidCredentials
	}
	if err := s.checkPasswordPolicy(req.NewPassword); err != nil {
		return err
	}

	hash, err := auth.HashPassword(req.NewPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("password changed", zap.String("user_id", user.ID.String()))
	return nil
}

func (s *AuthService) resolve(ctx context.Context, email string) (*crm.User, error) {
	resolved, err := s.identity.LookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, crm.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("%w: %v", ErrCRMUnavailable, err)
	}
	return resolved, nil
}

func (s *AuthService) checkPasswordPolicy(password string) error {
	if len(password) < s.cfg.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, s.cfg.MinPasswordLength)
	}
	if len(password) > auth.MaxPasswordBytes {
		return fmt.Errorf("%w: %v", ErrInvalidInput, auth.ErrPasswordTooLong)
	}
	return nil
}

func (s *AuthService) loginResponse(user *domain.User) (*domain.LoginResponse, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	expiresIn := int64(expiresAt.Sub(s.now()).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return &domain.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
		UserName:    user.FullName,
		UserEmail:   user.Email,
	}, nil
}
