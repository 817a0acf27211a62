package handler

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/headcorn/dashboard-api/internal/auth"
	"github.com/headcorn/dashboard-api/internal/domain"
	"github.com/headcorn/dashboard-api/internal/service"
	"go.uber.org/zap"
)

// DashboardService builds per-user dashboards
type DashboardService interface {
	Build(ctx context.Context, req service.DashboardRequest) (*domain.DashboardResponse, error)
	Item(ctx context.Context, req service.DashboardRequest, id string) (*domain.DashboardItem, error)
	CustomQuery(ctx context.Context, userName, query string) (*domain.CustomQueryResponse, error)
}

type DashboardHandler struct {
	dashboardService DashboardService
	logger           *zap.Logger
}

func NewDashboardHandler(dashboardService DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		logger:           logger,
	}
}

// parseRequest reads fiscal_year and order_status for the authenticated user
func parseRequest(r *http.Request) (service.DashboardRequest, error) {
	userCtx := auth.MustFromContext(r.Context())

	fy, err := domain.ParseFiscalYearSelector(r.URL.Query().Get("fiscal_year"))
	if err != nil {
		return service.DashboardRequest{}, err
	}
	status, err := domain.ParseOrderStatusFilter(r.URL.Query().Get("order_status"))
	if err != nil {
		return service.DashboardRequest{}, err
	}
	return service.DashboardRequest{
		UserName:    userCtx.FullName,
		FiscalYear:  fy,
		OrderStatus: status,
	}, nil
}

// GetDashboard godoc
// @Summary Get dashboard
// @Description Returns every non-empty dashboard item for the authenticated user
// @Tags Dashboard
// @Produce json
// @Param fiscal_year query string false "current or previous" default(current)
// @Param order_status query string false "active or all" default(active)
// @Success 200 {object} domain.DashboardResponse
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /api/dashboard/ [get]
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.dashboardService.Build(r.Context(), req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ListItems godoc
// @Summary List dashboard items
// @Tags Dashboard
// @Produce json
// @Param fiscal_year query string false "current or previous" default(current)
// @Param order_status query string false "active or all" default(active)
// @Success 200 {array} domain.DashboardItem
// @Security BearerAuth
// @Router /api/dashboard/items [get]
func (h *DashboardHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.dashboardService.Build(r.Context(), req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp.Items)
}

// GetItem godoc
// @Summary Get one dashboard item
// @Tags Dashboard
// @Produce json
// @Param id path string true "Item id"
// @Success 200 {object} domain.DashboardItem
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /api/dashboard/items/{id} [get]
func (h *DashboardHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// ExportItem godoc
// @Summary Export a dashboard item as CSV
// @Tags Dashboard
// @Produce text/csv
// @Param id path string true "Item id"
// @Success 200 {string} string "CSV"
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /api/dashboard/items/{id}/export [get]
func (h *DashboardHandler) ExportItem(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}

	filename := fmt.Sprintf("%s-%s.csv", item.ID, time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	// UTF-8 BOM so spreadsheet tools detect Cyrillic names
	_, _ = w.Write([]byte{0xEF, 0xBB, 0xBF})
	if err := writeCSV(w, item); err != nil {
		h.logger.Error("failed to write CSV export", zap.String("item", item.ID), zap.Error(err))
	}
}

// CustomQuery godoc
// @Summary Run a custom query
// @Description Development only. Runs a single SELECT scoped to the authenticated user (:user_name placeholder or injected "user" filter)
// @Tags Dashboard
// @Accept json
// @Produce json
// @Param request body domain.CustomQueryRequest true "Query"
// @Success 200 {object} domain.CustomQueryResponse
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /api/dashboard/query [post]
func (h *DashboardHandler) CustomQuery(w http.ResponseWriter, r *http.Request) {
	userCtx := auth.MustFromContext(r.Context())

	var req domain.CustomQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.dashboardService.CustomQuery(r.Context(), userCtx.FullName, req.Query)
	if err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *DashboardHandler) loadItem(w http.ResponseWriter, r *http.Request) (*domain.DashboardItem, bool) {
	req, err := parseRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	item, err := h.dashboardService.Item(r.Context(), req, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, err)
		return nil, false
	}
	return item, true
}

func (h *DashboardHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownItem):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrCustomQueryDisabled):
		respondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrInvalidInput):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusServiceUnavailable, "Request timed out")
	default:
		h.logger.Error("dashboard request failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeCSV writes the item's summary rows in column order
func writeCSV(w http.ResponseWriter, item *domain.DashboardItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(item.Columns); err != nil {
		return err
	}
	record := make([]string, len(item.Columns))
	for _, row := range item.Data {
		for i, col := range item.Columns {
			record[i] = csvValue(row[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
