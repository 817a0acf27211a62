package datawarehouse_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/headcorn/dashboard-api/internal/datawarehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteClient(t *testing.T) *datawarehouse.Client {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.Exec(`CREATE TABLE orders (task_id INTEGER, "user" TEXT, client TEXT)`).Error)
	require.NoError(t, gdb.Exec(`INSERT INTO orders VALUES (1, 'Ivan Petrov', 'Acme'), (2, 'Ivan Petrov', 'Globex'), (3, 'Anna Smirnova', 'Acme')`).Error)

	return datawarehouse.NewClientFromDB(sqlDB, time.Second, zap.NewNop())
}

func TestClient_QueryPreservesColumnOrder(t *testing.T) {
	client := newSQLiteClient(t)

	rs, err := client.Query(context.Background(),
		`SELECT client, task_id FROM orders WHERE "user" = ? ORDER BY task_id`, "Ivan Petrov")

	require.NoError(t, err)
	assert.Equal(t, []string{"client", "task_id"}, rs.Columns)
	require.Len(t, rs.Rows, 2)
	assert.Equal(t, "Acme", rs.Rows[0]["client"])
	assert.EqualValues(t, 2, rs.Rows[1]["task_id"])
}

func TestClient_QueryEmptyResult(t *testing.T) {
	client := newSQLiteClient(t)

	rs, err := client.Query(context.Background(), `SELECT task_id FROM orders WHERE "user" = ?`, "Nobody")

	require.NoError(t, err)
	assert.NotNil(t, rs.Rows)
	assert.Empty(t, rs.Rows)
}

func TestClient_QueryError(t *testing.T) {
	client := newSQLiteClient(t)

	_, err := client.Query(context.Background(), `SELECT * FROM missing_table`)

	assert.Error(t, err)
}

func TestClient_HealthCheck(t *testing.T) {
	client := newSQLiteClient(t)

	status := client.HealthCheck(context.Background())

	assert.Equal(t, "healthy", status.Status)
	assert.Empty(t, status.Error)
	assert.Equal(t, 1, status.MaxOpen)
	assert.Less(t, status.LatencyMs, int64(1000))
}

func TestHealthStatus_LatencyInMilliseconds(t *testing.T) {
	raw, err := json.Marshal(datawarehouse.HealthStatus{Status: "healthy", LatencyMs: (1500 * time.Millisecond).Milliseconds()})
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"latency_ms":1500,`)
}

func TestClient_NilIsSafe(t *testing.T) {
	var client *datawarehouse.Client

	_, err := client.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, datawarehouse.ErrNotInitialized)
	assert.Equal(t, "disabled", client.HealthCheck(context.Background()).Status)
	assert.NoError(t, client.Close())
}
