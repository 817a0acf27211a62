package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/headcorn/dashboard-api/internal/crm"
	"github.com/headcorn/dashboard-api/internal/domain"
	"gorm.io/gorm"
)

// memoryUserStore is an in-memory UserStore keyed by normalized email
type memoryUserStore struct {
	mu        sync.Mutex
	byEmail   map[string]*domain.User
	createErr error
	updateErr error
	touched   map[uuid.UUID]time.Time
}

func newMemoryUserStore(users ...*domain.User) *memoryUserStore {
	s := &memoryUserStore{byEmail: map[string]*domain.User{}, touched: map[uuid.UUID]time.Time{}}
	for _, u := range users {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		s.byEmail[domain.NormalizeEmail(u.Email)] = u
	}
	return s
}

func (s *memoryUserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.byEmail[user.Email]; ok {
		return gorm.ErrDuplicatedKey
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	copied := *user
	s.byEmail[user.Email] = &copied
	return nil
}

func (s *memoryUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memoryUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byEmail {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memoryUserStore) List(ctx context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.byEmail))
	for _, u := range s.byEmail {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *memoryUserStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return s.update(id, func(u *domain.User) { u.PasswordHash = passwordHash })
}

func (s *memoryUserStore) UpdateFullName(ctx context.Context, id uuid.UUID, fullName, crmID string) error {
	return s.update(id, func(u *domain.User) {
		u.FullName = fullName
		if crmID != "" {
			u.CRMID = crmID
		}
	})
}

func (s *memoryUserStore) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	s.touched[id] = at
	s.mu.Unlock()
	return s.update(id, func(u *domain.User) { u.LastLoginAt = &at })
}

func (s *memoryUserStore) update(id uuid.UUID, apply func(u *domain.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	for _, u := range s.byEmail {
		if u.ID == id {
			apply(u)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *memoryUserStore) get(email string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byEmail[email]
}

// stubDirectory resolves emails from a fixed table
type stubDirectory struct {
	mu      sync.Mutex
	users   map[string]*crm.User
	err     error
	lookups int
}

func (d *stubDirectory) LookupByEmail(ctx context.Context, email string) (*crm.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	if d.err != nil {
		return nil, d.err
	}
	if u, ok := d.users[email]; ok {
		return u, nil
	}
	return nil, crm.ErrUserNotFound
}

func (d *stubDirectory) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookups
}

type stubTokens struct {
	err error
}

func (s stubTokens) Issue(user *domain.User) (string, time.Time, error) {
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return "token-for-" + user.Email, time.Now().Add(time.Hour), nil
}

var errBoom = errors.New("boom")
