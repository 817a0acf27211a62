package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/headcorn/dashboard-api/internal/crm"
	"github.com/headcorn/dashboard-api/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SyncResult summarizes a CRM identity refresh
type SyncResult struct {
	Checked   int
	Updated   int
	NotFound  int
	Failed    int
	Unchanged int
}

type UserService struct {
	users    UserStore
	identity IdentityResolver
	logger   *zap.Logger
}

func NewUserService(users UserStore, identity IdentityResolver, logger *zap.Logger) *UserService {
	return &UserService{users: users, identity: identity, logger: logger}
}

// GetByEmail returns a registered user
func (s *UserService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// List returns every registered user
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

// SyncFromCRM re-resolves every registered user's name. Users the CRM no longer
// knows keep their stored identity.
func (s *UserService) SyncFromCRM(ctx context.Context) (*SyncResult, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	result := &SyncResult{}
	for i := range users {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		u := &users[i]
		result.Checked++

		resolved, err := s.identity.LookupByEmail(ctx, u.Email)
		if err != nil {
			if errors.Is(err, crm.ErrUserNotFound) {
				result.NotFound++
				s.logger.Warn("registered user no longer found in CRM", zap.String("email", u.Email))
				continue
			}
			result.Failed++
			s.logger.Error("CRM lookup failed during sync", zap.String("email", u.Email), zap.Error(err))
			continue
		}

		name := resolved.DisplayName()
		if name == u.FullName && (resolved.ID == "" || resolved.ID == u.CRMID) {
			result.Unchanged++
			continue
		}

		if err := s.users.UpdateFullName(ctx, u.ID, name, resolved.ID); err != nil {
			result.Failed++
			s.logger.Error("failed to update user identity", zap.String("email", u.Email), zap.Error(err))
			continue
		}
		result.Updated++
		s.logger.Info("user identity updated from CRM",
			zap.String("email", u.Email),
			zap.String("old_name", u.FullName),
			zap.String("new_name", name),
		)
	}
	return result, nil
}
