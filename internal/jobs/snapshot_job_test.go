package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/headcorn/dashboard-api/internal/domain"
	"github.com/headcorn/dashboard-api/internal/jobs"
	"github.com/headcorn/dashboard-api/internal/service"
	"github.com/headcorn/dashboard-api/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticUsers struct {
	users []domain.User
	err   error
}

func (s staticUsers) List(ctx context.Context) ([]domain.User, error) {
	return s.users, s.err
}

type stubBuilder struct {
	failFor map[string]bool
	reqs    []service.DashboardRequest
}

func (b *stubBuilder) Build(ctx context.Context, req service.DashboardRequest) (*domain.DashboardResponse, error) {
	b.reqs = append(b.reqs, req)
	if b.failFor[req.UserName] {
		return nil, errors.New("warehouse down")
	}
	return &domain.DashboardResponse{
		UserName: req.UserName,
		Items:    []domain.DashboardItem{{ID: service.ItemConversions, Data: []domain.Row{}}},
	}, nil
}

var snapshotDay = time.Date(2024, time.May, 10, 23, 30, 0, 0, time.UTC)

func TestSnapshotKey(t *testing.T) {
	id := uuid.MustParse("8d6c3f5e-1f0b-4a53-9a57-2c1b0f2d3e4f")
	local := time.Date(2024, time.May, 11, 1, 30, 0, 0, time.FixedZone("MSK", 3*3600))

	assert.Equal(t, "snapshots/2024-05-10/8d6c3f5e-1f0b-4a53-9a57-2c1b0f2d3e4f.json", jobs.SnapshotKey(local, id))
}

func TestSnapshotJob_RunOnce(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	anna := domain.User{ID: uuid.New(), Email: "anna@example.com", FullName: "Anna Smirnova"}
	ivan := domain.User{ID: uuid.New(), Email: "ivan@example.com", FullName: "Ivan Petrov"}
	builder := &stubBuilder{failFor: map[string]bool{"Ivan Petrov": true}}

	job := jobs.NewSnapshotJob(staticUsers{users: []domain.User{anna, ivan}}, builder, store, zap.NewNop(), time.Minute)
	job.SetClock(func() time.Time { return snapshotDay })

	stored, failed, err := job.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, stored)
	assert.Equal(t, 1, failed)
	for _, req := range builder.reqs {
		assert.Equal(t, domain.FiscalYearCurrent, req.FiscalYear)
		assert.Equal(t, domain.OrderStatusActive, req.OrderStatus)
	}

	raw, err := store.Get(context.Background(), jobs.SnapshotKey(snapshotDay, anna.ID))
	require.NoError(t, err)
	var snap jobs.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, anna.ID, snap.UserID)
	assert.Equal(t, "Anna Smirnova", snap.Dashboard.UserName)
	assert.True(t, snap.GeneratedAt.Equal(snapshotDay))

	_, err = store.Get(context.Background(), jobs.SnapshotKey(snapshotDay, ivan.ID))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotJob_ListFailure(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	job := jobs.NewSnapshotJob(staticUsers{err: errors.New("db down")}, &stubBuilder{}, store, zap.NewNop(), time.Minute)

	_, _, err = job.RunOnce(context.Background())

	assert.Error(t, err)
}

func TestSnapshotJob_StopsOnCancel(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	builder := &stubBuilder{}
	users := staticUsers{users: []domain.User{{ID: uuid.New(), FullName: "Anna"}}}
	job := jobs.NewSnapshotJob(users, builder, store, zap.NewNop(), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stored, _, err := job.RunOnce(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stored)
	assert.Empty(t, builder.reqs)
}

func TestLoadAndDeleteSnapshot(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	anna := domain.User{ID: uuid.New(), Email: "anna@example.com", FullName: "Anna Smirnova"}
	job := jobs.NewSnapshotJob(staticUsers{users: []domain.User{anna}}, &stubBuilder{}, store, zap.NewNop(), time.Minute)
	job.SetClock(func() time.Time { return snapshotDay })
	ctx := context.Background()

	stored, _, err := job.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stored)

	snap, err := jobs.LoadSnapshot(ctx, store, snapshotDay, anna.ID)
	require.NoError(t, err)
	assert.Equal(t, anna.Email, snap.Email)
	assert.Equal(t, "Anna Smirnova", snap.Dashboard.UserName)

	_, err = jobs.LoadSnapshot(ctx, store, snapshotDay.AddDate(0, 0, -1), anna.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, jobs.DeleteSnapshot(ctx, store, snapshotDay, anna.ID))
	_, err = jobs.LoadSnapshot(ctx, store, snapshotDay, anna.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoadSnapshot_RejectsCorruptDocument(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	id := uuid.New()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, jobs.SnapshotKey(snapshotDay, id), "application/json", []byte("{not json")))

	_, err = jobs.LoadSnapshot(ctx, store, snapshotDay, id)

	assert.ErrorContains(t, err, "decode snapshot")
}
