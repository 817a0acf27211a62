// Package datawarehouse provides read-only access to the PostgreSQL tables the
// dashboard analytics are computed from.
package datawarehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/headcorn/dashboard-api/internal/config"
	"github.com/headcorn/dashboard-api/internal/domain"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	// Default retry configuration for connection attempts
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 10 * time.Second
	defaultBackoffFactor  = 2.0

	defaultHealthCheckTimeout = 5 * time.Second
	defaultQueryTimeout       = 30 * time.Second
)

var ErrNotInitialized = errors.New("warehouse client not initialized")

// Client runs analytic queries against the reporting database
type Client struct {
	db           *sql.DB
	logger       *zap.Logger
	queryTimeout time.Duration
}

// HealthStatus represents the health check result for the warehouse connection
type HealthStatus struct {
	Status     string        `json:"status"`
	LatencyMs  int64         `json:"latency_ms"`
	Error      string        `json:"error,omitempty"`
	MaxOpen    int           `json:"max_open_connections"`
	Open       int           `json:"open_connections"`
	InUse      int           `json:"in_use"`
	Idle       int           `json:"idle"`
	WaitCount  int64         `json:"wait_count"`
	WaitTimeMs int64         `json:"wait_time_ms"`
}

// NewClient opens the warehouse pool. An empty warehouse URL reuses the main
// database DSN. Transient connection failures are retried with backoff.
func NewClient(cfg *config.WarehouseConfig, dbCfg *config.DatabaseConfig, logger *zap.Logger) (*Client, error) {
	dsn := cfg.URL
	if dsn == "" {
		dsn = dbCfg.ConnectionString()
	}

	logger.Info("Initializing warehouse connection",
		zap.Bool("shared_with_database", cfg.URL == ""),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("query_timeout_seconds", cfg.QueryTimeout),
	)

	var (
		db  *sql.DB
		err error
	)
	backoff := defaultInitialBackoff

	for attempt := 1; attempt <= defaultMaxRetries; attempt++ {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

			ctx, cancel := context.WithTimeout(context.Background(), defaultHealthCheckTimeout)
			err = db.PingContext(ctx)
			cancel()
			if err == nil {
				logger.Info("Warehouse connection established", zap.Int("attempts_taken", attempt))
				return NewClientFromDB(db, cfg.QueryTimeoutDuration(), logger), nil
			}
			_ = db.Close()
		}

		logger.Warn("Warehouse connection attempt failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", defaultMaxRetries),
		)
		if attempt < defaultMaxRetries {
			time.Sleep(backoff)
			backoff = min(time.Duration(float64(backoff)*defaultBackoffFactor), defaultMaxBackoff)
		}
	}

	return nil, fmt.Errorf("failed to connect to warehouse after %d attempts: %w", defaultMaxRetries, err)
}

// NewClientFromDB wraps an already opened pool
func NewClientFromDB(db *sql.DB, queryTimeout time.Duration, logger *zap.Logger) *Client {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &Client{db: db, logger: logger, queryTimeout: queryTimeout}
}

// Close closes the warehouse connection pool
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close warehouse connection: %w", err)
	}
	c.logger.Info("Warehouse connection closed")
	return nil
}

// HealthCheck pings the warehouse and reports pool statistics
func (c *Client) HealthCheck(ctx context.Context) *HealthStatus {
	if c == nil || c.db == nil {
		return &HealthStatus{Status: "disabled"}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultHealthCheckTimeout)
		defer cancel()
	}

	start := time.Now()
	err := c.db.PingContext(ctx)
	latency := time.Since(start)

	stats := c.db.Stats()
	status := &HealthStatus{
		Status:     "healthy",
		LatencyMs:  latency.Milliseconds(),
		MaxOpen:    stats.MaxOpenConnections,
		Open:       stats.OpenConnections,
		InUse:      stats.InUse,
		Idle:       stats.Idle,
		WaitCount:  stats.WaitCount,
		WaitTimeMs: stats.WaitDuration.Milliseconds(),
	}
	if err != nil {
		c.logger.Warn("Warehouse health check failed", zap.Error(err), zap.Duration("latency", latency))
		status.Status = "unhealthy"
		status.Error = err.Error()
	}
	return status
}

// Query runs a parameterized query and returns its rows in column order
func (c *Client) Query(ctx context.Context, query string, args ...interface{}) (*domain.ResultSet, error) {
	if c == nil || c.db == nil {
		return nil, ErrNotInitialized
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		c.logQueryError(query, start, err)
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	result, err := scanResultSet(rows)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Warehouse query completed",
		zap.String("query", truncateQuery(query, 200)),
		zap.Int("rows_returned", len(result.Rows)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// QueryReadOnly runs the query inside a read-only transaction that is always rolled back
func (c *Client) QueryReadOnly(ctx context.Context, query string, args ...interface{}) (*domain.ResultSet, error) {
	if c == nil || c.db == nil {
		return nil, ErrNotInitialized
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	start := time.Now()
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		c.logQueryError(query, start, err)
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	return scanResultSet(rows)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.queryTimeout)
}

func (c *Client) logQueryError(query string, start time.Time, err error) {
	c.logger.Error("Warehouse query failed",
		zap.Error(err),
		zap.String("query", truncateQuery(query, 200)),
		zap.Duration("duration", time.Since(start)),
	)
}

func scanResultSet(rows *sql.Rows) (*domain.ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get column names: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	result := &domain.ResultSet{Columns: columns, Rows: []domain.Row{}}
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(domain.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i], types[i].DatabaseTypeName())
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// normalizeValue makes driver values JSON friendly: NUMERIC becomes float64,
// other byte slices become strings.
func normalizeValue(v interface{}, dbType string) interface{} {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch strings.ToUpper(dbType) {
	case "NUMERIC", "DECIMAL":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	}
	return string(b)
}

// QuoteIdentifier validates a table name (optionally schema qualified) and quotes each part
func QuoteIdentifier(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}

// truncateQuery truncates a query string for logging purposes
func truncateQuery(query string, maxLen int) string {
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}
