package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/headcorn/dashboard-api/internal/jobs"
	"github.com/headcorn/dashboard-api/internal/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSyncer struct {
	result   *service.SyncResult
	err      error
	deadline bool
}

func (s *stubSyncer) SyncFromCRM(ctx context.Context) (*service.SyncResult, error) {
	_, s.deadline = ctx.Deadline()
	return s.result, s.err
}

func TestUserSyncJob_Run(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	syncer := &stubSyncer{result: &service.SyncResult{Checked: 3, Updated: 1, Unchanged: 2}}

	jobs.NewUserSyncJob(syncer, zap.New(core), time.Minute).Run()

	assert.True(t, syncer.deadline, "runs are bounded by the timeout")
	completed := logs.FilterMessage("user sync job completed").All()
	if assert.Len(t, completed, 1) {
		assert.Equal(t, int64(1), completed[0].ContextMap()["updated"])
	}
}

func TestUserSyncJob_RunLogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	jobs.NewUserSyncJob(&stubSyncer{err: errors.New("db down")}, zap.New(core), time.Minute).Run()

	assert.Equal(t, 1, logs.FilterMessage("user sync job failed").Len())
}
