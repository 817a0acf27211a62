package crm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// User is a CRM directory entry resolved by email
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Login      string `json:"login,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	FullName   string `json:"full_name"`
}

// DisplayName returns the name used to scope analytics. The resolved FullName
// wins; otherwise "Last First Middle" is assembled, falling back to the email.
func (u *User) DisplayName() string {
	if strings.TrimSpace(u.FullName) != "" {
		return strings.TrimSpace(u.FullName)
	}
	if name := joinNonEmpty(u.LastName, u.FirstName, u.MiddleName); name != "" {
		return name
	}
	if u.Email != "" {
		return u.Email
	}
	return "Unknown User"
}

// FullNameOf formats "First Last". The patronymic is left out because the
// analytic tables store names without it.
func FullNameOf(first, last string) string {
	return joinNonEmpty(first, last)
}

// NameFromEmail derives a display name from the local part of an email:
// "ivan.petrov" and "ivan_petrov" become "Ivan Petrov".
func NameFromEmail(email string) string {
	local := strings.SplitN(email, "@", 2)[0]
	sep := ""
	switch {
	case strings.Contains(local, "."):
		sep = "."
	case strings.Contains(local, "_"):
		sep = "_"
	}
	if sep == "" {
		return capitalize(local)
	}
	parts := strings.Split(local, sep)
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			words = append(words, capitalize(p))
		}
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func localPart(email string) string {
	return strings.ToLower(strings.SplitN(strings.TrimSpace(email), "@", 2)[0])
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
