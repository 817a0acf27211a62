package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/headcorn/dashboard-api/internal/domain"
	"github.com/headcorn/dashboard-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupUserRepo(t *testing.T) *repository.UserRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&domain.User{}))
	return repository.NewUserRepository(db)
}

func createUser(t *testing.T, repo *repository.UserRepository, email, name string) *domain.User {
	t.Helper()
	user := &domain.User{Email: email, PasswordHash: "hash", FullName: name}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestUserRepository_CreateAssignsID(t *testing.T) {
	repo := setupUserRepo(t)

	user := createUser(t, repo, "ivan.petrov@example.com", "Ivan Petrov")

	assert.NotEqual(t, uuid.Nil, user.ID)
	found, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ivan Petrov", found.FullName)
}

func TestUserRepository_GetByEmailNormalizes(t *testing.T) {
	repo := setupUserRepo(t)
	createUser(t, repo, "ivan.petrov@example.com", "Ivan Petrov")

	found, err := repo.GetByEmail(context.Background(), "  Ivan.Petrov@EXAMPLE.com ")

	require.NoError(t, err)
	assert.Equal(t, "ivan.petrov@example.com", found.Email)
}

func TestUserRepository_GetByEmailNotFound(t *testing.T) {
	repo := setupUserRepo(t)

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")

	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepository_ListOrdersByEmail(t *testing.T) {
	repo := setupUserRepo(t)
	createUser(t, repo, "zoe@example.com", "Zoe")
	createUser(t, repo, "anna@example.com", "Anna")

	users, err := repo.List(context.Background())

	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "anna@example.com", users[0].Email)
	assert.Equal(t, "zoe@example.com", users[1].Email)
}

func TestUserRepository_Updates(t *testing.T) {
	repo := setupUserRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "ivan@example.com", "Ivan")

	require.NoError(t, repo.UpdatePassword(ctx, user.ID, "new-hash"))
	require.NoError(t, repo.UpdateFullName(ctx, user.ID, "Ivan Petrov", "42"))
	at := time.Date(2024, time.May, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, repo.TouchLogin(ctx, user.ID, at))

	found, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", found.PasswordHash)
	assert.Equal(t, "Ivan Petrov", found.FullName)
	assert.Equal(t, "42", found.CRMID)
	require.NotNil(t, found.LastLoginAt)
	assert.True(t, at.Equal(*found.LastLoginAt))
}

func TestUserRepository_UpdateFullNameKeepsCRMIDWhenEmpty(t *testing.T) {
	repo := setupUserRepo(t)
	ctx := context.Background()
	user := createUser(t, repo, "ivan@example.com", "Ivan")
	require.NoError(t, repo.UpdateFullName(ctx, user.ID, "Ivan", "42"))

	require.NoError(t, repo.UpdateFullName(ctx, user.ID, "Ivan Petrov", ""))

	found, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "42", found.CRMID)
}

func TestUserRepository_UpdateUnknownUser(t *testing.T) {
	repo := setupUserRepo(t)

	err := repo.UpdatePassword(context.Background(), uuid.New(), "x")

	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
