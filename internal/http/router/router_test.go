package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/headcorn/dashboard-api/internal/auth"
	"github.com/headcorn/dashboard-api/internal/config"
	"github.com/headcorn/dashboard-api/internal/database"
	"github.com/headcorn/dashboard-api/internal/domain"
	"github.com/headcorn/dashboard-api/internal/http/handler"
	"github.com/headcorn/dashboard-api/internal/http/middleware"
	"github.com/headcorn/dashboard-api/internal/http/router"
	"github.com/headcorn/dashboard-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type okDB struct{}

func (okDB) Ping() error            { return nil }
func (okDB) Stats() *database.Stats { return &database.Stats{Status: "healthy"} }

type noAuth struct{}

func (noAuth) CheckEmail(ctx context.Context, email string) (*domain.CheckEmailResponse, error) {
	return &domain.CheckEmailResponse{Email: email}, nil
}

func (noAuth) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.LoginResponse, error) {
	return &domain.LoginResponse{}, nil
}

func (noAuth) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	return &domain.LoginResponse{}, nil
}

func (noAuth) ChangePassword(ctx context.Context, email string, req *domain.ChangePasswordRequest) error {
	return nil
}

type echoDashboard struct{}

func (echoDashboard) Build(ctx context.Context, req service.DashboardRequest) (*domain.DashboardResponse, error) {
	return &domain.DashboardResponse{UserName: req.UserName, Items: []domain.DashboardItem{}}, nil
}

func (echoDashboard) Item(ctx context.Context, req service.DashboardRequest, id string) (*domain.DashboardItem, error) {
	return &domain.DashboardItem{ID: id}, nil
}

func (echoDashboard) CustomQuery(ctx context.Context, userName, query string) (*domain.CustomQueryResponse, error) {
	return nil, service.ErrCustomQueryDisabled
}

func setup(t *testing.T) (http.Handler, *auth.TokenManager) {
	t.Helper()
	cfg := &config.Config{
		App:      config.AppConfig{Name: "Sales Dashboard API", Environment: "development", Version: "1.0.0"},
		JWT:      config.JWTConfig{SecretKey: "0123456789abcdef0123456789abcdef", Algorithm: "HS256", AccessTokenExpireMinutes: 30},
		Server:   config.ServerConfig{EnableSwagger: true},
		Security: config.SecurityConfig{ContentTypeNosniff: true},
		RateLimit: config.RateLimitConfig{
			Enabled:                true,
			RequestsPerMinute:      100,
			LoginRequestsPerMinute: 100,
		},
	}
	tokens, err := auth.NewTokenManager(&cfg.JWT)
	require.NoError(t, err)

	log := zap.NewNop()
	rt := router.NewRouter(
		cfg,
		log,
		auth.NewMiddleware(tokens, log),
		middleware.NewRateLimiter(&cfg.RateLimit, log),
		handler.NewHealthHandler(okDB{}, nil, cfg.App.Name, cfg.App.Version, "/swagger/index.html", log),
		handler.NewAuthHandler(noAuth{}, log),
		handler.NewDashboardHandler(echoDashboard{}, log),
	)
	return rt.Setup(), tokens
}

func do(h http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_PublicRoutes(t *testing.T) {
	h, _ := setup(t)

	for _, path := range []string{"/", "/health", "/health/db", "/health/ready", "/api/health"} {
		rr := do(h, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"), path)
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"), path)
	}

	rr := do(h, http.MethodPost, "/api/auth/check-email", "", `{"email":"ivan@example.com"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	h, _ := setup(t)

	for _, path := range []string{"/api/auth/me", "/api/dashboard/", "/api/dashboard/items", "/api/dashboard/items/conversions"} {
		rr := do(h, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
	rr := do(h, http.MethodGet, "/api/dashboard/", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_AuthenticatedDashboard(t *testing.T) {
	h, tokens := setup(t)
	token, _, err := tokens.Issue(&domain.User{ID: uuid.New(), Email: "ivan@example.com", FullName: "Ivan Petrov"})
	require.NoError(t, err)

	rr := do(h, http.MethodGet, "/api/dashboard/", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"user_name":"Ivan Petrov"`)

	rr = do(h, http.MethodGet, "/api/auth/me", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email":"ivan@example.com"`)

	rr = do(h, http.MethodPost, "/api/dashboard/query", token, `{"query":"SELECT 1"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_Swagger(t *testing.T) {
	h, _ := setup(t)

	rr := do(h, http.MethodGet, "/swagger/doc.json", "", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/api/dashboard/items/{id}/export")
}
