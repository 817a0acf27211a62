package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/headcorn/dashboard-api/internal/config"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

var (
	// ErrUserNotFound means the CRM answered but knows no user with the email
	ErrUserNotFound = errors.New("user not found in CRM")
	// ErrUnavailable means no CRM transport produced an answer
	ErrUnavailable = errors.New("CRM unavailable")
)

const (
	maxResponseBytes = 16 << 20
	retryBaseDelay   = 200 * time.Millisecond
	retryMaxDelay    = 2 * time.Second
	defaultPageSize  = 100
)

// Client resolves user identities through the Planfix XML and REST APIs
type Client struct {
	cfg        config.CRMConfig
	httpClient *http.Client
	logger     *zap.Logger
	baseDelay  time.Duration
}

// NewClient creates a CRM client
func NewClient(cfg *config.CRMConfig, logger *zap.Logger) *Client {
	timeout := cfg.TimeoutDuration()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        *cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		baseDelay:  retryBaseDelay,
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithRetryDelay sets the initial backoff between retries
func (c *Client) WithRetryDelay(d time.Duration) *Client {
	c.baseDelay = d
	return c
}

// LookupByEmail resolves a user via the XML API, falling back to the REST API
func (c *Client) LookupByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrUserNotFound
	}

	user, xmlErr := c.lookupXML(ctx, email)
	if xmlErr == nil {
		return user, nil
	}
	if !errors.Is(xmlErr, ErrUserNotFound) {
		c.logger.Warn("CRM XML lookup failed, trying REST API",
			zap.String("email", email),
			zap.Error(xmlErr),
		)
	}

	user, restErr := c.lookupREST(ctx, email)
	if restErr == nil {
		return user, nil
	}
	if errors.Is(xmlErr, ErrUserNotFound) || errors.Is(restErr, ErrUserNotFound) {
		return nil, ErrUserNotFound
	}

	c.logger.Error("CRM lookup failed on all transports",
		zap.String("email", email),
		zap.NamedError("xml_error", xmlErr),
		zap.NamedError("rest_error", restErr),
	)
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(xmlErr, restErr))
}

// TaskURL links to a CRM task
func (c *Client) TaskURL(taskID string) string {
	if c.cfg.TaskURLTemplate == "" || taskID == "" {
		return ""
	}
	return fmt.Sprintf(c.cfg.TaskURLTemplate, taskID)
}

// Ping checks that the XML API accepts our credentials
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetchXMLPage(ctx, 1)
	return err
}

func (c *Client) pageSize() int {
	if c.cfg.PageSize <= 0 {
		return defaultPageSize
	}
	return c.cfg.PageSize
}

func (c *Client) maxPages() int {
	if c.cfg.MaxPages <= 0 {
		return 1
	}
	return c.cfg.MaxPages
}

// do sends a request built by newReq, retrying network errors, 5xx and 429
// with exponential backoff, and hands the response to handle.
func (c *Client) do(ctx context.Context, newReq func(context.Context) (*http.Request, error), handle func(*http.Response) error) error {
	retries := c.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	base := c.baseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(retries),
		retry.WithCappedDuration(retryMaxDelay, retry.NewExponential(base)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := newReq(ctx)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("%s returned status %d", req.URL.Host, resp.StatusCode))
		}
		return handle(resp)
	})
}
