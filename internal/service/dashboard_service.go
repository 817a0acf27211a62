package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/headcorn/dashboard-api/internal/config"
	"github.com/headcorn/dashboard-api/internal/datawarehouse"
	"github.com/headcorn/dashboard-api/internal/domain"
	applog "github.com/headcorn/dashboard-api/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReportSource runs the per-user analytic queries
type ReportSource interface {
	ConversionCounts(ctx context.Context, userName string, windows []domain.Period) (*domain.ResultSet, error)
	PreparationTime(ctx context.Context, userName string, window domain.Period) (*domain.ResultSet, error)
	ProductionTime(ctx context.Context, userName string, window domain.Period) (*domain.ResultSet, error)
	ClientOrders(ctx context.Context, userName string, window *domain.Period, excludeStatuses []string) (*domain.ResultSet, error)
	OverdueTasks(ctx context.Context, userName string, asOf time.Time) (*domain.ResultSet, error)
	OverdueSummary(ctx context.Context, userName string, asOf time.Time) (*domain.ResultSet, error)
	WaitingSales(ctx context.Context, userName string, asOf time.Time) (*domain.ResultSet, error)
	CustomQuery(ctx context.Context, userName, query string) (*domain.ResultSet, error)
}

// TaskLinker renders CRM task links
type TaskLinker interface {
	TaskURL(taskID string) string
}

// DashboardRequest selects whose dashboard to build and for which period
type DashboardRequest struct {
	UserName    string
	FiscalYear  domain.FiscalYearSelector
	OrderStatus domain.OrderStatusFilter
}

// Dashboard item ids, in display order
const (
	ItemConversions     = "conversions"
	ItemPreparationTime = "preparation_time"
	ItemProductionTime  = "production_time"
	ItemClientOrders    = "client_orders"
	ItemOverdueTasks    = "overdue_tasks"
	ItemWaitingSales    = "waiting_sales"
)

const totalLabel = "TOTAL"

type itemContext struct {
	user   string
	now    time.Time
	fy     domain.Period
	status domain.OrderStatusFilter
}

func (ic itemContext) log(logger *zap.Logger) *zap.Logger {
	return applog.WithDashboard(logger, ic.user, ic.fy.Label, string(ic.status))
}

type itemDef struct {
	id          string
	title       string
	description string
	build       func(s *DashboardService, ctx context.Context, ic itemContext) (*domain.DashboardItem, error)
}

var itemCatalog = []itemDef{
	{
		id:          ItemConversions,
		title:       "Quote to sample conversion",
		description: "Share of commercial proposals followed by a sample, by period",
		build:       (*DashboardService).conversions,
	},
	{
		id:          ItemPreparationTime,
		title:       "Quote preparation time",
		description: "Average days from request to finished proposal, by month of the fiscal year",
		build:       (*DashboardService).preparationTime,
	},
	{
		id:          ItemProductionTime,
		title:       "Production time",
		description: "Average days from order to completion, by month of the fiscal year",
		build:       (*DashboardService).productionTime,
	},
	{
		id:          ItemClientOrders,
		title:       "Client orders",
		description: "Orders per client",
		build:       (*DashboardService).clientOrders,
	},
	{
		id:          ItemOverdueTasks,
		title:       "Overdue tasks",
		description: "Open tasks past their deadline, by category",
		build:       (*DashboardService).overdueTasks,
	},
	{
		id:          ItemWaitingSales,
		title:       "Sales waiting on you",
		description: "Sales that wait for the manager's action",
		build:       (*DashboardService).waitingSales,
	},
}

// ItemIDs lists the dashboard item ids in display order
func ItemIDs() []string {
	ids := make([]string, len(itemCatalog))
	for i, def := range itemCatalog {
		ids[i] = def.id
	}
	return ids
}

type DashboardService struct {
	reports     ReportSource
	links       TaskLinker
	cfg         config.ReportsConfig
	logger      *zap.Logger
	now         func() time.Time
	concurrency int
}

func NewDashboardService(reports ReportSource, links TaskLinker, cfg *config.ReportsConfig, logger *zap.Logger) *DashboardService {
	return &DashboardService{
		reports:     reports,
		links:       links,
		cfg:         *cfg,
		logger:      logger,
		now:         time.Now,
		concurrency: 4,
	}
}

// SetClock overrides the time source
func (s *DashboardService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *DashboardService) itemContext(req DashboardRequest) (itemContext, error) {
	if strings.TrimSpace(req.UserName) == "" {
		return itemContext{}, fmt.Errorf("%w: user name is empty", ErrInvalidInput)
	}
	if req.FiscalYear == "" {
		req.FiscalYear = domain.FiscalYearCurrent
	}
	if !req.FiscalYear.IsValid() {
		return itemContext{}, fmt.Errorf("%w: unknown fiscal year %q", ErrInvalidInput, req.FiscalYear)
	}
	if req.OrderStatus == "" {
		req.OrderStatus = domain.OrderStatusActive
	}

	now := s.now()
	return itemContext{
		user:   req.UserName,
		now:    now,
		fy:     req.FiscalYear.Resolve(now, s.cfg.FiscalYearStartMonth),
		status: req.OrderStatus,
	}, nil
}

// Build assembles the user's dashboard. Items run concurrently; a failing
// item is logged and left out, as are items without rows.
func (s *DashboardService) Build(ctx context.Context, req DashboardRequest) (*domain.DashboardResponse, error) {
	ic, err := s.itemContext(req)
	if err != nil {
		return nil, err
	}

	built := make([]*domain.DashboardItem, len(itemCatalog))
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i, def := range itemCatalog {
		i, def := i, def
		g.Go(func() error {
			item, err := s.buildItem(ctx, def, ic)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			built[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]domain.DashboardItem, 0, len(built))
	for _, item := range built {
		if item != nil && len(item.Data) > 0 {
			items = append(items, *item)
		}
	}

	ic.log(s.logger).Debug("dashboard built", zap.Int("items", len(items)))

	return &domain.DashboardResponse{
		UserName:    ic.user,
		FiscalYear:  ic.fy.DTO(),
		GeneratedAt: ic.now.UTC(),
		Items:       items,
	}, nil
}

// Item builds a single item. Unlike Build, an item without rows is returned as is.
func (s *DashboardService) Item(ctx context.Context, req DashboardRequest, id string) (*domain.DashboardItem, error) {
	ic, err := s.itemContext(req)
	if err != nil {
		return nil, err
	}
	for _, def := range itemCatalog {
		if def.id != id {
			continue
		}
		item, err := s.buildItem(ctx, def, ic)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return emptyItem(def), nil
		}
		return item, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownItem, id)
}

func (s *DashboardService) buildItem(ctx context.Context, def itemDef, ic itemContext) (*domain.DashboardItem, error) {
	start := time.Now()
	item, err := def.build(s, ctx, ic)
	if err != nil {
		ic.log(s.logger).Error("dashboard item failed",
			zap.String("item", def.id),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	item.ID, item.Title, item.Description = def.id, def.title, def.description
	if item.Data == nil {
		item.Data = []domain.Row{}
	}
	return item, nil
}

func emptyItem(def itemDef) *domain.DashboardItem {
	return &domain.DashboardItem{
		ID:          def.id,
		Title:       def.title,
		Description: def.description,
		Data:        []domain.Row{},
		Columns:     []string{},
	}
}

// CustomQuery runs an ad-hoc SELECT scoped to the user
func (s *DashboardService) CustomQuery(ctx context.Context, userName, query string) (*domain.CustomQueryResponse, error) {
	if !s.cfg.EnableCustomQuery {
		return nil, ErrCustomQueryDisabled
	}
	result, err := s.reports.CustomQuery(ctx, userName, query)
	if err != nil {
		if errors.Is(err, datawarehouse.ErrNotSelect) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("custom query failed: %w", err)
	}
	s.logger.Info("custom query executed",
		zap.String("user_name", userName),
		zap.Int("rows", len(result.Rows)),
	)
	return &domain.CustomQueryResponse{
		User:    userName,
		Data:    result.Rows,
		Columns: result.Columns,
	}, nil
}

// ============================================================================
// Items
// ============================================================================

func (s *DashboardService) conversions(ctx context.Context, ic itemContext) (*domain.DashboardItem, error) {
	windows := []domain.Period{domain.QuarterOf(ic.now), domain.PreviousQuarter(ic.now), ic.fy}
	labels := []string{
		"Current quarter (" + windows[0].Label + ")",
		"Previous quarter (" + windows[1].Label + ")",
		"Fiscal year (" + windows[2].Label + ")",
	}

	rs, err := s.reports.ConversionCounts(ctx, ic.user, windows)
	if err != nil {
		return nil, err
	}

	counts := make(map[int64][2]int64, len(rs.Rows))
	for _, row := range rs.Rows {
		counts[toInt64(row["ord"])] = [2]int64{toInt64(row["quotes"]), toInt64(row["samples"])}
	}

	data := make([]domain.Row, 0, len(windows))
	for i := range windows {
		c := counts[int64(i+1)]
		data = append(data, domain.Row{
			"Period":     labels[i],
			"Quotes":     c[0],
			"Samples":    c[1],
			"Conversion": conversionRate(c[0], c[1]),
		})
	}
	return &domain.DashboardItem{
		Data:    data,
		Columns: []string{"Period", "Quotes", "Samples", "Conversion"},
	}, nil
}

func (s *DashboardService) preparationTime(ctx context.Context, ic itemContext) (*domain.DashboardItem, error) {
	rs, err := s.reports.PreparationTime(ctx, ic.user, ic.fy)
	if err != nil {
		return nil, err
	}
	data := make([]domain.Row, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		data = append(data, domain.Row{
			"Month":    monthLabel(row["month"]),
			"Quotes":   toInt64(row["quotes"]),
			"Avg days": round1(toFloat64(row["avg_days"])),
		})
	}
	return &domain.DashboardItem{
		Data:    data,
		Columns: []string{"Month", "Quotes", "Avg days"},
	}, nil
}

func (s *DashboardService) productionTime(ctx context.Context, ic itemContext) (*domain.DashboardItem, error) {
	rs, err := s.reports.ProductionTime(ctx, ic.user, ic.fy)
	if err != nil {
		return nil, err
	}
	data := make([]domain.Row, 0, len(rs.Rows))
	var prev float64
	for i, row := range rs.Rows {
		avg := round1(toFloat64(row["avg_days"]))
		change := ""
		if i > 0 {
			change = fmt.Sprintf("%+.1f", avg-prev)
		}
		prev = avg
		data = append(data, domain.Row{
			"Month":    monthLabel(row["month"]),
			"Orders":   toInt64(row["orders"]),
			"Avg days": avg,
			"Change":   change,
		})
	}
	return &domain.DashboardItem{
		Data:    data,
		Columns: []string{"Month", "Orders", "Avg days", "Change"},
	}, nil
}

func (s *DashboardService) clientOrders(ctx context.Context, ic itemContext) (*domain.DashboardItem, error) {
	var (
		window  *domain.Period
		exclude []string
	)
	if ic.status == domain.OrderStatusAll {
		fy := ic.fy
		window = &fy
	} else {
		exclude = s.cfg.CompletedStatuses
	}

	rs, err := s.reports.ClientOrders(ctx, ic.user, window, exclude)
	if err != nil {
		return nil, err
	}

	var (
		clients []string
		perCli  = map[string]int64{}
		details = make([]domain.Row, 0, len(rs.Rows))
	)
	for _, row := range rs.Rows {
		client := toString(row["client"])
		if _, seen := perCli[client]; !seen {
			clients = append(clients, client)
		}
		perCli[client]++

		taskID := toString(row["task_id"])
		details = append(details, domain.Row{
			"client":     client,
			"task_id":    taskID,
			"order_name": toString(row["order_name"]),
			"status":     toString(row["status"]),
			"task_url":   s.links.TaskURL(taskID),
		})
	}
	if len(details) == 0 {
		return &domain.DashboardItem{Columns: []string{"Client", "Orders"}}, nil
	}

	data := make([]domain.Row, 0, len(clients)+1)
	for _, c := range clients {
		data = append(data, domain.Row{"Client": c, "Orders": perCli[c]})
	}
	data = append(data, domain.Row{"Client": totalLabel, "Orders": int64(len(details))})

	return &domain.DashboardItem{
		Data:    data,
		Columns: []string{"Client", "Orders"},
		Details: details,
	}, nil
}

func (s *DashboardService) overdueTasks(ctx context.Context, ic itemContext) (*domain.DashboardItem, error) {
	summary, err := s.reports.OverdueSummary(ctx, ic.user, ic.now)
	if err != nil {
		return nil, err
	}
	rs, err := s.reports.OverdueTasks(ctx, ic.user, ic.now)
	if err != nil {
		return nil, err
	}

	// Counts come from the grouped query; details are capped by the row limit
	data := make([]domain.Row, 0, len(summary.Rows))
	for _, row := range summary.Rows {
		data = append(data, domain.Row{
			"Category": toString(row["category"]),
			"Count":    toInt64(row["tasks"]),
			"Avg days": round1(toFloat64(row["avg_days"])),
		})
	}
	sort.SliceStable(data, func(i, j int) bool {
		return data[i]["Count"].(int64) > data[j]["Count"].(int64)
	})

	details := make([]domain.Row, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		taskID := toString(row["task_id"])
		details = append(details, domain.Row{
			"category":     toString(row["category"]),
			"task_id":      taskID,
			"task_name":    toString(row["task_name"]),
			"overdue_days": toInt64(row["overdue_days"]),
			"task_url":     s.links.TaskURL(taskID),
		})
	}

	return &domain.DashboardItem{
		Data:    data,
		Columns: []string{"Category", "Count", "Avg days"},
		Details: details,
	}, nil
}

func (s *DashboardService) waitingSales(ctx context.Context, ic itemContext) (*domain.DashboardItem, error) {
	rs, err := s.reports.WaitingSales(ctx, ic.user, ic.now)
	if err != nil {
		return nil, err
	}
	if len(rs.Rows) == 0 {
		return &domain.DashboardItem{Columns: []string{"Count", "Max days"}}, nil
	}

	var maxDays int64
	details := make([]domain.Row, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		days := toInt64(row["waiting_days"])
		maxDays = max(maxDays, days)
		taskID := toString(row["task_id"])
		details = append(details, domain.Row{
			"task_id":      taskID,
			"task_name":    toString(row["task_name"]),
			"status":       toString(row["status"]),
			"waiting_days": days,
			"task_url":     s.links.TaskURL(taskID),
		})
	}

	return &domain.DashboardItem{
		Data:    []domain.Row{{"Count": int64(len(details)), "Max days": maxDays}},
		Columns: []string{"Count", "Max days"},
		Details: details,
	}, nil
}

// ============================================================================
// Value helpers
// ============================================================================

// conversionRate formats samples/quotes as a percentage with two decimals
func conversionRate(quotes, samples int64) string {
	if quotes == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(samples)*100/float64(quotes))
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func monthLabel(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01")
	case nil:
		return ""
	}
	s := toString(v)
	if len(s) >= 7 {
		return s[:7]
	}
	return s
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(math.Round(n))
	case string:
		var out int64
		_, _ = fmt.Sscan(n, &out)
		return out
	case []byte:
		return toInt64(string(n))
	}
	return 0
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		var out float64
		_, _ = fmt.Sscan(n, &out)
		return out
	case []byte:
		return toFloat64(string(n))
	}
	return 0
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format(time.DateOnly)
	}
	return fmt.Sprint(v)
}
