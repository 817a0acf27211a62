package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type restEndpoint struct {
	path    string
	payload func(email string) interface{}
}

// restEndpoints are tried in order until one answers 200
var restEndpoints = []restEndpoint{
	{path: "user/list", payload: func(email string) interface{} {
		return map[string]string{"email": email}
	}},
	{path: "contact/list", payload: func(email string) interface{} {
		return map[string]string{"email": email}
	}},
	{path: "employee/list", payload: func(email string) interface{} {
		return map[string]interface{}{
			"filters": []map[string]string{{"field": "email", "operator": "equals", "value": email}},
		}
	}},
}

var restListKeys = []string{"users", "contacts", "employees", "list"}

var errRESTStatus = errors.New("unexpected status")

// lookupREST queries the REST API; the first listed entry wins
func (c *Client) lookupREST(ctx context.Context, email string) (*User, error) {
	if c.cfg.RESTURL == "" {
		return nil, fmt.Errorf("rest api not configured")
	}

	var (
		body    map[string]interface{}
		lastErr error
	)
	for _, ep := range restEndpoints {
		decoded, err := c.postREST(ctx, ep.path, ep.payload(email))
		if err != nil {
			c.logger.Debug("CRM REST endpoint failed",
				zap.String("endpoint", ep.path),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		body = decoded
		break
	}
	if body == nil {
		return nil, fmt.Errorf("all rest endpoints failed: %w", lastErr)
	}

	var entries []interface{}
	for _, key := range restListKeys {
		if list, ok := body[key].([]interface{}); ok && len(list) > 0 {
			entries = list
			break
		}
	}
	if len(entries) == 0 {
		return nil, ErrUserNotFound
	}
	entry, ok := entries[0].(map[string]interface{})
	if !ok {
		return nil, ErrUserNotFound
	}

	user := restUser(entry, email)
	c.logger.Info("user resolved via CRM REST API",
		zap.String("email", email),
		zap.String("crm_id", user.ID),
		zap.String("full_name", user.FullName),
	)
	return user, nil
}

func (c *Client) postREST(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(c.cfg.RESTURL, "/") + "/" + path

	var decoded map[string]interface{}
	err = c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.cfg.RESTToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.RESTToken)
		}
		return req, nil
	}, func(resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w %d from %s", errRESTStatus, resp.StatusCode, path)
		}
		decoded = nil
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
			return fmt.Errorf("failed to decode rest response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if decoded == nil {
		decoded = map[string]interface{}{}
	}
	return decoded, nil
}

func restUser(entry map[string]interface{}, email string) *User {
	first := firstString(entry, "name", "firstName", "firstname")
	last := firstString(entry, "surname", "lastName", "lastname")
	middle := firstString(entry, "patronymic", "middleName", "middlename")

	fullName := firstString(entry, "fullName", "full_name", "displayName", "title")
	if fullName == "" {
		fullName = FullNameOf(first, last)
	}
	if fullName == "" {
		fullName = NameFromEmail(email)
	}

	userEmail := firstString(entry, "email")
	if userEmail == "" {
		userEmail = email
	}

	return &User{
		ID:         firstString(entry, "id"),
		Email:      userEmail,
		FirstName:  first,
		LastName:   last,
		MiddleName: middle,
		FullName:   fullName,
	}
}

// firstString returns the first non-empty value among keys, formatting numbers
func firstString(entry map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := entry[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		case json.Number:
			return v.String()
		}
	}
	return ""
}
