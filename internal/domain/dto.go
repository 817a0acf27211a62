package domain

import "time"

// Field names are snake_case to stay wire compatible with the dashboard frontend.

// ============================================================================
// Auth DTOs
// ============================================================================

// CheckEmailRequest asks whether an email is known to the CRM and registered locally
type CheckEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// CheckEmailResponse describes the identity resolved for an email
type CheckEmailResponse struct {
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	CRMID      string `json:"crm_id,omitempty"`
	Registered bool   `json:"registered"`
}

// RegisterRequest creates a local account for a CRM user
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// LoginRequest authenticates with email and password
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// ChangePasswordRequest replaces the caller's password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=72"`
	NewPassword     string `json:"new_password" validate:"required,max=72"`
}

// LoginResponse is returned after a successful login or registration
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	UserName    string `json:"user_name"`
	UserEmail   string `json:"user_email"`
}

// UserInfo is the identity carried by an access token
type UserInfo struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	CRMID    string `json:"crm_id,omitempty"`
}

// ============================================================================
// Dashboard DTOs
// ============================================================================

// Row is one result row keyed by column name
type Row map[string]interface{}

// ResultSet is a query result with its column order preserved
type ResultSet struct {
	Columns []string
	Rows    []Row
}

// DashboardItem is one named table of query results with optional drill-down rows
type DashboardItem struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Data        []Row    `json:"data"`
	Columns     []string `json:"columns"`
	Details     []Row    `json:"details,omitempty"`
}

// PeriodDTO is a reporting window in API responses
type PeriodDTO struct {
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// DashboardResponse wraps the items of a user's dashboard
type DashboardResponse struct {
	UserName    string          `json:"user_name"`
	FiscalYear  PeriodDTO       `json:"fiscal_year"`
	GeneratedAt time.Time       `json:"generated_at"`
	Items       []DashboardItem `json:"items"`
}

// CustomQueryRequest carries an ad-hoc SQL statement
type CustomQueryRequest struct {
	Query string `json:"query" validate:"required,max=20000"`
}

// CustomQueryResponse is the result of an ad-hoc query
type CustomQueryResponse struct {
	User    string   `json:"user"`
	Data    []Row    `json:"data"`
	Columns []string `json:"columns"`
}

// ============================================================================
// Misc DTOs
// ============================================================================

// ServiceInfo is returned from the root endpoint
type ServiceInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

// HealthResponse mirrors the legacy /api/health contract
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Service  string `json:"service"`
}
