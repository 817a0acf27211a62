package datawarehouse_test

import (
	"testing"

	"github.com/headcorn/dashboard-api/internal/datawarehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeToUser(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "placeholder",
			query: "SELECT * FROM orders WHERE manager = :user_name AND x = 1;",
			want:  "SELECT * FROM orders WHERE manager = $1 AND x = 1",
		},
		{
			name:  "no where",
			query: "SELECT task_id FROM orders",
			want:  `SELECT task_id FROM orders WHERE "user" = $1`,
		},
		{
			name:  "no where with order by",
			query: "SELECT task_id FROM orders ORDER BY date_create DESC LIMIT 5",
			want:  `SELECT task_id FROM orders WHERE "user" = $1 ORDER BY date_create DESC LIMIT 5`,
		},
		{
			name:  "where keeps precedence",
			query: "select * from orders where status = 'new' or status = 'open' order by 1",
			want:  `select * from orders where "user" = $1 AND (status = 'new' or status = 'open') order by 1`,
		},
		{
			name:  "with clause",
			query: "WITH t AS (SELECT 1) SELECT * FROM t",
			want:  `WITH t AS (SELECT 1) SELECT * FROM t WHERE "user" = $1`,
		},
		{
			name:  "where inside cte",
			query: "WITH t AS (SELECT * FROM zakazy WHERE status = 'new') SELECT * FROM t ORDER BY 1",
			want:  `WITH t AS (SELECT * FROM zakazy WHERE "user" = $1 AND (status = 'new')) SELECT * FROM t ORDER BY 1`,
		},
		{
			name:  "where inside derived table",
			query: "SELECT * FROM (SELECT * FROM zakazy WHERE status = 'new') s",
			want:  `SELECT * FROM (SELECT * FROM zakazy WHERE "user" = $1 AND (status = 'new')) s`,
		},
		{
			name:  "nested order by stays in subquery",
			query: "SELECT task_id FROM zakazy WHERE task_id IN (SELECT task_id FROM overdue WHERE x = 1 ORDER BY 1 LIMIT 3)",
			want:  `SELECT task_id FROM zakazy WHERE "user" = $1 AND (task_id IN (SELECT task_id FROM overdue WHERE x = 1 ORDER BY 1 LIMIT 3))`,
		},
		{
			name:  "nested order by without where",
			query: "WITH t AS (SELECT * FROM zakazy ORDER BY 1 LIMIT 5) SELECT * FROM t",
			want:  `WITH t AS (SELECT * FROM zakazy ORDER BY 1 LIMIT 5) SELECT * FROM t WHERE "user" = $1`,
		},
		{
			name:  "quoted paren and keyword",
			query: "SELECT * FROM zakazy WHERE note = ') order by' LIMIT 2",
			want:  `SELECT * FROM zakazy WHERE "user" = $1 AND (note = ') order by') LIMIT 2`,
		},
		{
			name:  "column named like a keyword",
			query: "SELECT * FROM zakazy WHERE my_limit > 2 ORDER BY 1",
			want:  `SELECT * FROM zakazy WHERE "user" = $1 AND (my_limit > 2) ORDER BY 1`,
		},
		{
			name:  "unterminated quote keeps plain injection",
			query: "SELECT * FROM zakazy WHERE note = 'x",
			want:  `SELECT * FROM zakazy WHERE "user" = $1 AND note = 'x`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := datawarehouse.ScopeToUser(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScopeToUser_RejectsNonSelect(t *testing.T) {
	for _, q := range []string{
		"",
		"   ;",
		"DELETE FROM orders",
		"UPDATE orders SET status = 'x'",
		"SELECT 1; DROP TABLE users",
		"selection FROM x",
	} {
		_, err := datawarehouse.ScopeToUser(q)
		assert.ErrorIs(t, err, datawarehouse.ErrNotSelect, q)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	got, err := datawarehouse.QuoteIdentifier("proscheti_gr_artema")
	require.NoError(t, err)
	assert.Equal(t, `"proscheti_gr_artema"`, got)

	got, err = datawarehouse.QuoteIdentifier("analytics.orders")
	require.NoError(t, err)
	assert.Equal(t, `"analytics"."orders"`, got)

	for _, bad := range []string{"", "orders; drop table users", `orders"`, "a.b.c", "1orders", "orders name"} {
		_, err := datawarehouse.QuoteIdentifier(bad)
		assert.ErrorIs(t, err, datawarehouse.ErrInvalidIdentifier, bad)
	}
}
