package jobs

import (
	"context"
	"time"

	"github.com/headcorn/dashboard-api/internal/service"
	"go.uber.org/zap"
)

// UserSyncJobName is the name of the CRM identity refresh job
const UserSyncJobName = "user_sync"

// UserSyncer refreshes registered users from the CRM
type UserSyncer interface {
	SyncFromCRM(ctx context.Context) (*service.SyncResult, error)
}

// UserSyncJob re-resolves every registered user's name from the CRM
type UserSyncJob struct {
	users   UserSyncer
	logger  *zap.Logger
	timeout time.Duration
}

// NewUserSyncJob creates the job. The timeout bounds a single run.
func NewUserSyncJob(users UserSyncer, logger *zap.Logger, timeout time.Duration) *UserSyncJob {
	return &UserSyncJob{users: users, logger: logger, timeout: timeout}
}

// Run executes one sync. It is called by the scheduler.
func (j *UserSyncJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	result, err := j.users.SyncFromCRM(ctx)
	if err != nil {
		j.logger.Error("user sync job failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}

	j.logger.Info("user sync job completed",
		zap.Int("checked", result.Checked),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("not_found", result.NotFound),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)))
}
