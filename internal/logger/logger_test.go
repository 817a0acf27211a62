package logger_test

import (
	"testing"

	"github.com/headcorn/dashboard-api/internal/config"
	"github.com/headcorn/dashboard-api/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Levels(t *testing.T) {
	log, err := logger.NewLogger(&config.LoggingConfig{Level: "warn", Format: "json"}, &config.AppConfig{Name: "api", Environment: "production"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	log, err = logger.NewLogger(&config.LoggingConfig{Level: "nonsense"}, &config.AppConfig{Environment: "development"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel), "unknown levels fall back to info")
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestWithRequestAndUser(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	log := logger.WithUser(logger.WithRequest(zap.New(core), "GET", "/api/dashboard/", "req-1"), "ivan@example.com", "Ivan Petrov")
	log.Info("hello")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "Ivan Petrov", fields["user_name"])
}

func TestNewLogger_ConsoleFormatInProduction(t *testing.T) {
	log, err := logger.NewLogger(&config.LoggingConfig{Level: "debug", Format: "console"}, &config.AppConfig{Name: "api", Environment: "production", Version: "1.2.0"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestWithDashboardAndJob(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	logger.WithDashboard(base, "Ivan Petrov", "FY 2024/25", "active").Info("built")
	logger.WithJob(base, "dashboard_snapshot").Info("ran")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]interface{}{
		"user_name":    "Ivan Petrov",
		"fiscal_year":  "FY 2024/25",
		"order_status": "active",
	}, entries[0].ContextMap())
	assert.Equal(t, map[string]interface{}{"job_name": "dashboard_snapshot"}, entries[1].ContextMap())
}
