package jobs_test

import (
	"testing"
	"time"

	"github.com/headcorn/dashboard-api/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestScheduler_AddRemove(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())

	require.NoError(t, s.AddJob("b_job", "0 30 2 * * *", func() {}))
	require.NoError(t, s.AddJob("a_job", "@every 1h", func() {}))
	assert.Equal(t, []string{"a_job", "b_job"}, s.JobNames())

	assert.Error(t, s.AddJob("a_job", "@every 1h", func() {}), "duplicate names are rejected")
	assert.Error(t, s.AddJob("bad", "not a cron expression", func() {}))

	require.NoError(t, s.RemoveJob("b_job"))
	assert.Equal(t, []string{"a_job"}, s.JobNames())
	assert.Error(t, s.RemoveJob("b_job"))
}

func TestScheduler_RunsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := jobs.NewScheduler(zap.NewNop())
	ran := make(chan struct{}, 1)
	require.NoError(t, s.AddJob("tick", "* * * * * *", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}))

	s.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	select {
	case <-s.Stop().Done():
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_RecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := jobs.NewScheduler(zap.NewNop())
	done := make(chan struct{}, 2)
	require.NoError(t, s.AddJob("panics", "* * * * * *", func() {
		defer func() { done <- struct{}{} }()
		panic("boom")
	}))

	s.Start()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
	<-s.Stop().Done()
}
