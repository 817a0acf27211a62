package crm_test

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/headcorn/dashboard-api/internal/config"
	"github.com/headcorn/dashboard-api/internal/crm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type directoryUser struct {
	ID, Name, LastName, Email, Login string
}

type pageRequest struct {
	Method      string `xml:"method,attr"`
	Account     string `xml:"account"`
	PageCurrent int    `xml:"pageCurrent"`
	PageSize    int    `xml:"pageSize"`
}

// newDirectoryServer serves user.getList pages out of users
func newDirectoryServer(t *testing.T, users []directoryUser) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)

		key, token, ok := r.BasicAuth()
		if !ok || key != "api-key" || token != "api-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req pageRequest
		body, _ := io.ReadAll(r.Body)
		if err := xml.Unmarshal(body, &req); err != nil || req.Method != "user.getList" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		start := (req.PageCurrent - 1) * req.PageSize
		end := start + req.PageSize
		if start > len(users) {
			start = len(users)
		}
		if end > len(users) {
			end = len(users)
		}

		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><response status="ok"><users>`)
		for _, u := range users[start:end] {
			fmt.Fprintf(&b, "<user><id>%s</id><name>%s</name><lastName>%s</lastName><email>%s</email><login>%s</login></user>",
				u.ID, u.Name, u.LastName, u.Email, u.Login)
		}
		b.WriteString(`</users></response>`)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(cfg config.CRMConfig) *crm.Client {
	if cfg.XMLAPIKey == "" {
		cfg.XMLAPIKey, cfg.XMLToken = "api-key", "api-token"
	}
	cfg.Account = "acme"
	return crm.NewClient(&cfg, zap.NewNop()).WithRetryDelay(time.Millisecond)
}

func TestLookupByEmail_XMLExactMatchWinsAcrossPages(t *testing.T) {
	srv, _ := newDirectoryServer(t, []directoryUser{
		{ID: "1", Name: "Ivan", LastName: "Sidorov", Email: "ivan.petrov@other.example"},
		{ID: "2", Name: "Oleg", LastName: "Ivanov", Email: "oleg@example.com"},
		{ID: "3", Name: "Ivan", LastName: "Petrov", Email: "Ivan.Petrov@example.com"},
	})
	client := newTestClient(config.CRMConfig{XMLURL: srv.URL, PageSize: 2, MaxPages: 5})

	user, err := client.LookupByEmail(context.Background(), " ivan.petrov@example.com ")

	require.NoError(t, err)
	assert.Equal(t, "3", user.ID)
	assert.Equal(t, "Ivan Petrov", user.FullName)
}

func TestLookupByEmail_LoginBeatsLocalPart(t *testing.T) {
	srv, _ := newDirectoryServer(t, []directoryUser{
		{ID: "1", Name: "Anna", LastName: "Local", Email: "anna@old.example"},
		{ID: "2", Name: "Anna", LastName: "Login", Login: "anna"},
	})
	client := newTestClient(config.CRMConfig{XMLURL: srv.URL, PageSize: 100})

	user, err := client.LookupByEmail(context.Background(), "anna@example.com")

	require.NoError(t, err)
	assert.Equal(t, "2", user.ID)
	assert.Equal(t, "anna@example.com", user.Email)
}

func TestLookupByEmail_NameFallsBackToLogin(t *testing.T) {
	srv, _ := newDirectoryServer(t, []directoryUser{
		{ID: "9", Email: "robot@example.com", Login: "robot"},
	})
	client := newTestClient(config.CRMConfig{XMLURL: srv.URL})

	user, err := client.LookupByEmail(context.Background(), "robot@example.com")

	require.NoError(t, err)
	assert.Equal(t, "robot", user.FullName)
}

func TestLookupByEmail_NotFound(t *testing.T) {
	srv, _ := newDirectoryServer(t, []directoryUser{
		{ID: "1", Name: "Oleg", LastName: "Ivanov", Email: "oleg@example.com"},
	})
	client := newTestClient(config.CRMConfig{XMLURL: srv.URL})

	_, err := client.LookupByEmail(context.Background(), "nobody@example.com")

	assert.ErrorIs(t, err, crm.ErrUserNotFound)
}

func TestLookupByEmail_EmptyEmail(t *testing.T) {
	client := newTestClient(config.CRMConfig{})

	_, err := client.LookupByEmail(context.Background(), "  ")

	assert.ErrorIs(t, err, crm.ErrUserNotFound)
}

func TestLookupByEmail_RetriesThenFallsBackToREST(t *testing.T) {
	var xmlHits int32
	xmlSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&xmlHits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer xmlSrv.Close()

	var gotAuth, gotPath string
	restSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"users": []map[string]interface{}{
				{"id": 77, "name": "Maria", "surname": "Kuznetsova", "email": payload["email"]},
			},
		})
	}))
	defer restSrv.Close()

	client := newTestClient(config.CRMConfig{
		XMLURL:     xmlSrv.URL,
		RESTURL:    restSrv.URL + "/rest/",
		RESTToken:  "rest-token",
		MaxRetries: 2,
	})

	user, err := client.LookupByEmail(context.Background(), "maria@example.com")

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&xmlHits), "one attempt plus two retries")
	assert.Equal(t, "Bearer rest-token", gotAuth)
	assert.Equal(t, "/rest/user/list", gotPath)
	assert.Equal(t, "77", user.ID)
	assert.Equal(t, "Maria Kuznetsova", user.FullName)
}

func TestLookupByEmail_RESTTriesNextEndpoint(t *testing.T) {
	restSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/employee/list" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"employees":[{"id":"5","fullName":"Petr Orlov"}]}`))
	}))
	defer restSrv.Close()

	client := newTestClient(config.CRMConfig{RESTURL: restSrv.URL})

	user, err := client.LookupByEmail(context.Background(), "petr@example.com")

	require.NoError(t, err)
	assert.Equal(t, "Petr Orlov", user.FullName)
	assert.Equal(t, "petr@example.com", user.Email)
}

func TestLookupByEmail_RESTNameFromEmail(t *testing.T) {
	restSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"contacts":[{"id":"5"}]}`))
	}))
	defer restSrv.Close()

	client := newTestClient(config.CRMConfig{RESTURL: restSrv.URL})

	user, err := client.LookupByEmail(context.Background(), "elena_volkova@example.com")

	require.NoError(t, err)
	assert.Equal(t, "Elena Volkova", user.FullName)
}

func TestLookupByEmail_AllTransportsDown(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	client := newTestClient(config.CRMConfig{XMLURL: down.URL, RESTURL: down.URL})

	_, err := client.LookupByEmail(context.Background(), "ivan@example.com")

	assert.ErrorIs(t, err, crm.ErrUnavailable)
	assert.NotErrorIs(t, err, crm.ErrUserNotFound)
}

func TestLookupByEmail_XMLErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<response status="error"><code>0007</code><message>Invalid account</message></response>`))
	}))
	defer srv.Close()

	client := newTestClient(config.CRMConfig{XMLURL: srv.URL})

	_, err := client.LookupByEmail(context.Background(), "ivan@example.com")

	assert.ErrorIs(t, err, crm.ErrUnavailable)
	assert.ErrorContains(t, err, "Invalid account")
}

func TestLookupByEmail_XMLMissAndRESTEmptyIsNotFound(t *testing.T) {
	xmlSrv, _ := newDirectoryServer(t, nil)
	restSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"users":[]}`))
	}))
	defer restSrv.Close()

	client := newTestClient(config.CRMConfig{XMLURL: xmlSrv.URL, RESTURL: restSrv.URL})

	_, err := client.LookupByEmail(context.Background(), "ghost@example.com")

	assert.ErrorIs(t, err, crm.ErrUserNotFound)
}

func TestPing(t *testing.T) {
	srv, hits := newDirectoryServer(t, nil)
	client := newTestClient(config.CRMConfig{XMLURL: srv.URL})

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestTaskURL(t *testing.T) {
	client := newTestClient(config.CRMConfig{TaskURLTemplate: "https://acme.planfix.ru/task/%s"})

	assert.Equal(t, "https://acme.planfix.ru/task/1234", client.TaskURL("1234"))
	assert.Equal(t, "", client.TaskURL(""))
	assert.Equal(t, "", newTestClient(config.CRMConfig{}).TaskURL("1"))
}
