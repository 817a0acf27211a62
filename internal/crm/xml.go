package crm

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type xmlRequest struct {
	XMLName     xml.Name `xml:"request"`
	Method      string   `xml:"method,attr"`
	Account     string   `xml:"account"`
	PageCurrent int      `xml:"pageCurrent"`
	PageSize    int      `xml:"pageSize"`
}

type xmlResponse struct {
	XMLName xml.Name  `xml:"response"`
	Status  string    `xml:"status,attr"`
	Code    string    `xml:"code"`
	Message string    `xml:"message"`
	Users   []xmlUser `xml:"users>user"`
}

type xmlUser struct {
	ID       string `xml:"id"`
	Name     string `xml:"name"`
	LastName string `xml:"lastName"`
	MidName  string `xml:"midName"`
	Email    string `xml:"email"`
	Login    string `xml:"login"`
}

func (u xmlUser) toUser(fallbackEmail string) *User {
	email := strings.TrimSpace(u.Email)
	fullName := FullNameOf(u.Name, u.LastName)
	if fullName == "" {
		fullName = strings.TrimSpace(u.Login)
	}
	if fullName == "" {
		fullName = email
	}
	if fullName == "" {
		fullName = fallbackEmail
	}
	if email == "" {
		email = fallbackEmail
	}
	return &User{
		ID:         strings.TrimSpace(u.ID),
		Email:      email,
		Login:      strings.TrimSpace(u.Login),
		FirstName:  strings.TrimSpace(u.Name),
		LastName:   strings.TrimSpace(u.LastName),
		MiddleName: strings.TrimSpace(u.MidName),
		FullName:   fullName,
	}
}

// Match priorities, lower is better
const (
	matchNone = iota
	matchExactEmail
	matchLogin
	matchLocalPart
)

func matchRank(u xmlUser, email, target string) int {
	userEmail := strings.ToLower(strings.TrimSpace(u.Email))
	userLogin := strings.ToLower(strings.TrimSpace(u.Login))
	switch {
	case userEmail == "" && userLogin == "":
		return matchNone
	case userEmail != "" && userEmail == email:
		return matchExactEmail
	case userLogin != "" && userLogin == target:
		return matchLogin
	case userEmail != "" && localPart(userEmail) == target:
		return matchLocalPart
	}
	return matchNone
}

// bestMatch picks the highest priority match across the whole directory
func bestMatch(users []xmlUser, email string) (xmlUser, int) {
	email = strings.ToLower(strings.TrimSpace(email))
	target := localPart(email)

	var best xmlUser
	bestRank := matchNone
	for _, u := range users {
		rank := matchRank(u, email, target)
		if rank == matchNone {
			continue
		}
		if bestRank == matchNone || rank < bestRank {
			best, bestRank = u, rank
			if rank == matchExactEmail {
				break
			}
		}
	}
	return best, bestRank
}

// lookupXML scans the user.getList directory for the email
func (c *Client) lookupXML(ctx context.Context, email string) (*User, error) {
	if c.cfg.XMLURL == "" || c.cfg.XMLAPIKey == "" {
		return nil, fmt.Errorf("xml api not configured")
	}

	var directory []xmlUser
	for page := 1; page <= c.maxPages(); page++ {
		users, err := c.fetchXMLPage(ctx, page)
		if err != nil {
			return nil, err
		}
		directory = append(directory, users...)
		if len(users) < c.pageSize() {
			break
		}
	}

	match, rank := bestMatch(directory, email)
	if rank == matchNone {
		c.logger.Debug("user not found in CRM directory",
			zap.String("email", email),
			zap.Int("directory_size", len(directory)),
		)
		return nil, ErrUserNotFound
	}

	user := match.toUser(email)
	c.logger.Info("user resolved via CRM XML API",
		zap.String("email", email),
		zap.String("crm_id", user.ID),
		zap.String("match", matchNames[rank]),
		zap.String("full_name", user.FullName),
	)
	return user, nil
}

var matchNames = map[int]string{
	matchExactEmail: "exact email",
	matchLogin:      "login",
	matchLocalPart:  "email local part",
}

func (c *Client) fetchXMLPage(ctx context.Context, page int) ([]xmlUser, error) {
	payload, err := xml.Marshal(xmlRequest{
		Method:      "user.getList",
		Account:     c.cfg.Account,
		PageCurrent: page,
		PageSize:    c.pageSize(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode xml request: %w", err)
	}
	body := append([]byte(xml.Header), payload...)

	var parsed xmlResponse
	err = c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.XMLURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/xml; charset=utf-8")
		req.Header.Set("Accept", "application/xml")
		req.SetBasicAuth(c.cfg.XMLAPIKey, c.cfg.XMLToken)
		return req, nil
	}, func(resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("xml api returned status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("failed to read xml response: %w", err)
		}
		parsed = xmlResponse{}
		if err := xml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse xml response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if parsed.Status != "ok" {
		code, msg := parsed.Code, parsed.Message
		if code == "" {
			code = "unknown"
		}
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, fmt.Errorf("xml api error: code=%s, message=%s", code, msg)
	}
	return parsed.Users, nil
}
