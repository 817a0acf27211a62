package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/headcorn/dashboard-api/internal/config"
	"github.com/headcorn/dashboard-api/internal/datawarehouse"
	"github.com/headcorn/dashboard-api/internal/domain"
	"github.com/lib/pq"
)

// Querier executes analytic SQL
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (*domain.ResultSet, error)
	QueryReadOnly(ctx context.Context, query string, args ...interface{}) (*domain.ResultSet, error)
}

// ReportRepository builds the per-user analytic queries. Every statement binds
// the user's full name as $1 and filters each source table on "user" = $1.
type ReportRepository struct {
	q        Querier
	quotes   []string
	samples  []string
	orders   string
	overdue  string
	waiting  string
	rowLimit int
}

// NewReportRepository validates and quotes the configured source tables
func NewReportRepository(q Querier, cfg *config.ReportsConfig) (*ReportRepository, error) {
	if len(cfg.QuoteTables) == 0 {
		return nil, fmt.Errorf("at least one quote table is required")
	}

	quoteAll := func(names []string) ([]string, error) {
		out := make([]string, 0, len(names))
		for _, n := range names {
			quoted, err := datawarehouse.QuoteIdentifier(n)
			if err != nil {
				return nil, err
			}
			out = append(out, quoted)
		}
		return out, nil
	}

	r := &ReportRepository{q: q, rowLimit: cfg.RowLimit}
	if r.rowLimit <= 0 {
		r.rowLimit = 500
	}

	var err error
	if r.quotes, err = quoteAll(cfg.QuoteTables); err != nil {
		return nil, fmt.Errorf("reports.quoteTables: %w", err)
	}
	if r.samples, err = quoteAll(cfg.SampleTables); err != nil {
		return nil, fmt.Errorf("reports.sampleTables: %w", err)
	}
	singles := []struct {
		name string
		src  string
		dst  *string
	}{
		{"reports.ordersTable", cfg.OrdersTable, &r.orders},
		{"reports.overdueTasksTable", cfg.OverdueTasksTable, &r.overdue},
		{"reports.waitingSalesTable", cfg.WaitingSalesTable, &r.waiting},
	}
	for _, s := range singles {
		if s.src == "" {
			continue
		}
		if *s.dst, err = datawarehouse.QuoteIdentifier(s.src); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return r, nil
}

// RowLimit is the cap applied to detail and ad-hoc query rows
func (r *ReportRepository) RowLimit() int {
	return r.rowLimit
}

// unionSelect renders "SELECT cols FROM t WHERE "user" = $1" for each table joined by UNION ALL
func unionSelect(tables []string, columns string) string {
	parts := make([]string, len(tables))
	for i, t := range tables {
		parts[i] = fmt.Sprintf(`SELECT %s FROM %s WHERE "user" = $1`, columns, t)
	}
	return strings.Join(parts, "\n\tUNION ALL\n\t")
}

// ConversionCounts counts distinct quotes (by cp_finish) and samples (by
// date_create) inside each window. Rows come back in window order with
// columns ord, quotes, samples.
func (r *ReportRepository) ConversionCounts(ctx context.Context, userName string, windows []domain.Period) (*domain.ResultSet, error) {
	if len(windows) == 0 {
		return &domain.ResultSet{}, nil
	}

	samples := `SELECT NULL::text AS task_id, NULL::timestamp AS at WHERE FALSE`
	if len(r.samples) > 0 {
		samples = unionSelect(r.samples, "task_id::text AS task_id, date_create::timestamp AS at")
	}

	args := []interface{}{userName}
	values := make([]string, len(windows))
	for i, w := range windows {
		args = append(args, w.Start, w.End)
		values[i] = fmt.Sprintf("(%d, $%d::timestamp, $%d::timestamp)", i+1, len(args)-1, len(args))
	}

	query := fmt.Sprintf(`WITH quotes AS (
	%s
), samples AS (
	%s
), windows(ord, start_at, end_at) AS (
	VALUES %s
)
SELECT w.ord,
	(SELECT COUNT(DISTINCT q.task_id) FROM quotes q WHERE q.at >= w.start_at AND q.at < w.end_at) AS quotes,
	(SELECT COUNT(DISTINCT s.task_id) FROM samples s WHERE s.at >= w.start_at AND s.at < w.end_at) AS samples
FROM windows w
ORDER BY w.ord`,
		unionSelect(r.quotes, "task_id::text AS task_id, cp_finish::timestamp AS at"),
		samples,
		strings.Join(values, ", "),
	)

	return r.q.Query(ctx, query, args...)
}

// PreparationTime averages the days between quote creation and completion per
// month of the window. Columns: month, quotes, avg_days.
func (r *ReportRepository) PreparationTime(ctx context.Context, userName string, window domain.Period) (*domain.ResultSet, error) {
	query := fmt.Sprintf(`WITH quotes AS (
	%s
)
SELECT DATE_TRUNC('month', finished_at)::date AS month,
	COUNT(DISTINCT task_id) AS quotes,
	ROUND(AVG(EXTRACT(EPOCH FROM (finished_at - created_at)) / 86400.0)::numeric, 1) AS avg_days
FROM quotes
WHERE finished_at >= $2 AND finished_at < $3 AND created_at IS NOT NULL
GROUP BY 1
ORDER BY 1`,
		unionSelect(r.quotes, "task_id::text AS task_id, date_create::timestamp AS created_at, cp_finish::timestamp AS finished_at"),
	)
	return r.q.Query(ctx, query, userName, window.Start, window.End)
}

// ProductionTime averages the days from order creation to completion per month
// of the window. Columns: month, orders, avg_days.
func (r *ReportRepository) ProductionTime(ctx context.Context, userName string, window domain.Period) (*domain.ResultSet, error) {
	if r.orders == "" {
		return &domain.ResultSet{}, nil
	}
	query := fmt.Sprintf(`SELECT DATE_TRUNC('month', date_finish::timestamp)::date AS month,
	COUNT(DISTINCT task_id) AS orders,
	ROUND(AVG(EXTRACT(EPOCH FROM (date_finish::timestamp - date_create::timestamp)) / 86400.0)::numeric, 1) AS avg_days
FROM %s
WHERE "user" = $1 AND date_finish >= $2 AND date_finish < $3 AND date_create IS NOT NULL
GROUP BY 1
ORDER BY 1`, r.orders)
	return r.q.Query(ctx, query, userName, window.Start, window.End)
}

// ClientOrders lists the user's orders. A nil window means every date; the
// excluded statuses drop closed orders. Columns: client, task_id, order_name,
// status, date_create.
func (r *ReportRepository) ClientOrders(ctx context.Context, userName string, window *domain.Period, excludeStatuses []string) (*domain.ResultSet, error) {
	if r.orders == "" {
		return &domain.ResultSet{}, nil
	}

	args := []interface{}{userName}
	conds := []string{`"user" = $1`}
	if window != nil {
		args = append(args, window.Start, window.End)
		conds = append(conds, fmt.Sprintf("date_create >= $%d AND date_create < $%d", len(args)-1, len(args)))
	}
	if len(excludeStatuses) > 0 {
		args = append(args, pq.Array(excludeStatuses))
		conds = append(conds, fmt.Sprintf("NOT (COALESCE(status, '') = ANY($%d))", len(args)))
	}
	args = append(args, r.rowLimit)

	query := fmt.Sprintf(`SELECT COALESCE(NULLIF(client, ''), '(none)') AS client,
	task_id::text AS task_id,
	order_name,
	status,
	date_create
FROM %s
WHERE %s
ORDER BY client, date_create DESC
LIMIT $%d`, r.orders, strings.Join(conds, " AND "), len(args))
	return r.q.Query(ctx, query, args...)
}

// OverdueTasks lists open tasks whose deadline is before asOf. Columns:
// category, task_id, task_name, deadline, overdue_days.
func (r *ReportRepository) OverdueTasks(ctx context.Context, userName string, asOf time.Time) (*domain.ResultSet, error) {
	if r.overdue == "" {
		return &domain.ResultSet{}, nil
	}
	query := fmt.Sprintf(`SELECT COALESCE(NULLIF(category, ''), '(none)') AS category,
	task_id::text AS task_id,
	task_name,
	deadline::date AS deadline,
	($2::date - deadline::date) AS overdue_days
FROM %s
WHERE "user" = $1 AND deadline < $2::date
ORDER BY overdue_days DESC, task_id
LIMIT $3`, r.overdue)
	return r.q.Query(ctx, query, userName, asOf, r.rowLimit)
}

// OverdueSummary groups every overdue task by category, independent of the
// detail row limit. Columns: category, tasks, avg_days.
func (r *ReportRepository) OverdueSummary(ctx context.Context, userName string, asOf time.Time) (*domain.ResultSet, error) {
	if r.overdue == "" {
		return &domain.ResultSet{}, nil
	}
	query := fmt.Sprintf(`SELECT COALESCE(NULLIF(category, ''), '(none)') AS category,
	COUNT(*) AS tasks,
	ROUND(AVG($2::date - deadline::date)::numeric, 1) AS avg_days
FROM %s
WHERE "user" = $1 AND deadline < $2::date
GROUP BY 1
ORDER BY tasks DESC, category`, r.overdue)
	return r.q.Query(ctx, query, userName, asOf)
}

// WaitingSales lists sales waiting on the user. Columns: task_id, task_name,
// status, waiting_days.
func (r *ReportRepository) WaitingSales(ctx context.Context, userName string, asOf time.Time) (*domain.ResultSet, error) {
	if r.waiting == "" {
		return &domain.ResultSet{}, nil
	}
	query := fmt.Sprintf(`SELECT task_id::text AS task_id,
	task_name,
	status,
	GREATEST($2::date - waiting_since::date, 0) AS waiting_days
FROM %s
WHERE "user" = $1
ORDER BY waiting_days DESC, task_id
LIMIT $3`, r.waiting)
	return r.q.Query(ctx, query, userName, asOf, r.rowLimit)
}

// CustomQuery scopes an ad-hoc SELECT to the user and runs it read-only
func (r *ReportRepository) CustomQuery(ctx context.Context, userName, query string) (*domain.ResultSet, error) {
	scoped, err := datawarehouse.ScopeToUser(query)
	if err != nil {
		return nil, err
	}
	result, err := r.q.QueryReadOnly(ctx, scoped, userName)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) > r.rowLimit {
		result.Rows = result.Rows[:r.rowLimit]
	}
	return result, nil
}
