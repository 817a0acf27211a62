package logger

import (
	"fmt"

	"github.com/headcorn/dashboard-api/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates the service logger. JSON output is used in production or
// when logging.format is "json"; "console" forces the colored development
// encoder everywhere.
func NewLogger(cfg *config.LoggingConfig, appCfg *config.AppConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	switch {
	case cfg.Format == "console":
		zapCfg = developmentConfig()
	case cfg.Format == "json" || appCfg.Environment == "production":
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		zapCfg = developmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	fields := map[string]interface{}{
		"app":         appCfg.Name,
		"environment": appCfg.Environment,
	}
	if appCfg.Version != "" {
		fields["version"] = appCfg.Version
	}
	zapCfg.InitialFields = fields

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger, nil
}

func developmentConfig() zap.Config {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapCfg
}

// WithRequest adds request context to logger
func WithRequest(logger *zap.Logger, method, path, requestID string) *zap.Logger {
	return logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)
}

// WithUser adds the authenticated user
func WithUser(logger *zap.Logger, email, fullName string) *zap.Logger {
	return logger.With(
		zap.String("user_email", email),
		zap.String("user_name", fullName),
	)
}

// WithDashboard tags log lines of one dashboard build: whose dashboard, which
// fiscal year and which order filter.
func WithDashboard(logger *zap.Logger, userName, fiscalYear, orderStatus string) *zap.Logger {
	return logger.With(
		zap.String("user_name", userName),
		zap.String("fiscal_year", fiscalYear),
		zap.String("order_status", orderStatus),
	)
}

// WithJob tags log lines of a scheduled job run
func WithJob(logger *zap.Logger, name string) *zap.Logger {
	return logger.With(zap.String("job_name", name))
}
