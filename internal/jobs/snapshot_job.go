package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/headcorn/dashboard-api/internal/domain"
	"github.com/headcorn/dashboard-api/internal/service"
	"github.com/headcorn/dashboard-api/internal/storage"
	"go.uber.org/zap"
)

// SnapshotJobName is the name of the dashboard archive job
const SnapshotJobName = "dashboard_snapshot"

// UserLister lists registered users
type UserLister interface {
	List(ctx context.Context) ([]domain.User, error)
}

// DashboardBuilder builds a user's dashboard
type DashboardBuilder interface {
	Build(ctx context.Context, req service.DashboardRequest) (*domain.DashboardResponse, error)
}

// Snapshot is the archived document
type Snapshot struct {
	UserID      uuid.UUID                 `json:"user_id"`
	Email       string                    `json:"email"`
	FullName    string                    `json:"full_name"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Dashboard   *domain.DashboardResponse `json:"dashboard"`
}

// SnapshotKey returns the storage key of a user's snapshot for a day
func SnapshotKey(day time.Time, userID uuid.UUID) string {
	return fmt.Sprintf("snapshots/%s/%s.json", day.UTC().Format("2006-01-02"), userID)
}

// SnapshotJob archives the current dashboard of every registered user
type SnapshotJob struct {
	users      UserLister
	dashboards DashboardBuilder
	store      storage.Storage
	logger     *zap.Logger
	timeout    time.Duration
	now        func() time.Time
}

// NewSnapshotJob creates the job. The timeout bounds a whole run.
func NewSnapshotJob(users UserLister, dashboards DashboardBuilder, store storage.Storage, logger *zap.Logger, timeout time.Duration) *SnapshotJob {
	return &SnapshotJob{
		users:      users,
		dashboards: dashboards,
		store:      store,
		logger:     logger,
		timeout:    timeout,
		now:        time.Now,
	}
}

// SetClock overrides the time source, used by tests
func (j *SnapshotJob) SetClock(now func() time.Time) {
	j.now = now
}

// Run archives one snapshot per user. It is called by the scheduler.
func (j *SnapshotJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	stored, failed, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error("dashboard snapshot job failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}

	j.logger.Info("dashboard snapshot job completed",
		zap.Int("stored", stored),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
}

// RunOnce archives the snapshots and reports how many were stored and how
// many users failed. A failure for one user does not stop the others.
func (j *SnapshotJob) RunOnce(ctx context.Context) (stored int, failed int, err error) {
	users, err := j.users.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list users: %w", err)
	}

	for i := range users {
		if err := ctx.Err(); err != nil {
			return stored, failed, err
		}
		if err := j.snapshot(ctx, &users[i]); err != nil {
			failed++
			j.logger.Warn("failed to archive dashboard",
				zap.String("user_email", users[i].Email),
				zap.Error(err))
			continue
		}
		stored++
	}
	return stored, failed, nil
}

func (j *SnapshotJob) snapshot(ctx context.Context, user *domain.User) error {
	now := j.now()
	dashboard, err := j.dashboards.Build(ctx, service.DashboardRequest{
		UserName:    user.FullName,
		FiscalYear:  domain.FiscalYearCurrent,
		OrderStatus: domain.OrderStatusActive,
	})
	if err != nil {
		return fmt.Errorf("build dashboard: %w", err)
	}

	data, err := json.Marshal(Snapshot{
		UserID:      user.ID,
		Email:       user.Email,
		FullName:    user.FullName,
		GeneratedAt: now.UTC(),
		Dashboard:   dashboard,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := j.store.Put(ctx, SnapshotKey(now, user.ID), "application/json", data); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads back the snapshot archived for a user on a day
func LoadSnapshot(ctx context.Context, store storage.Storage, day time.Time, userID uuid.UUID) (*Snapshot, error) {
	data, err := store.Get(ctx, SnapshotKey(day, userID))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// DeleteSnapshot removes the snapshot archived for a user on a day
func DeleteSnapshot(ctx context.Context, store storage.Storage, day time.Time, userID uuid.UUID) error {
	return store.Delete(ctx, SnapshotKey(day, userID))
}
