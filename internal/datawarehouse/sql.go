package datawarehouse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	userNamePattern   = regexp.MustCompile(`:user_name\b`)
	wherePattern      = regexp.MustCompile(`(?i)\bWHERE\b`)
	tailPattern       = regexp.MustCompile(`(?i)^(GROUP\s+BY|ORDER\s+BY|HAVING|LIMIT|OFFSET|WINDOW|FETCH|UNION|INTERSECT|EXCEPT)\b`)
	leadingPattern    = regexp.MustCompile(`(?i)^\s*(SELECT|WITH)\b`)
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrNotSelect         = errors.New("only a single SELECT or WITH statement is allowed")
)

// ValidateIdentifier checks a configured table name before it is spliced into SQL
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// ScopeToUser prepares an ad-hoc query for execution with the user's name as $1.
// :user_name placeholders are rewritten to $1; when there are none, a
// "user" = $1 predicate is ANDed into the first WHERE clause, or added as a
// WHERE before the top-level GROUP BY or ORDER BY and similar trailing clauses.
func ScopeToUser(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSuffix(q, ";")
	q = strings.TrimSpace(q)

	if q == "" || strings.Contains(q, ";") || !leadingPattern.MatchString(q) {
		return "", ErrNotSelect
	}

	if userNamePattern.MatchString(q) {
		return userNamePattern.ReplaceAllString(q, "$$1"), nil
	}

	if loc := wherePattern.FindStringIndex(q); loc != nil {
		head, cond := q[:loc[1]], q[loc[1]:]
		end, ok := conditionEnd(cond)
		if !ok {
			return head + ` "user" = $1 AND ` + strings.TrimSpace(cond), nil
		}
		tail := cond[end:]
		if tail != "" && tail[0] != ')' {
			tail = " " + tail
		}
		return head + ` "user" = $1 AND (` + strings.TrimSpace(cond[:end]) + `)` + tail, nil
	}

	if end, ok := conditionEnd(q); ok && end < len(q) && q[end] != ')' {
		return strings.TrimRight(q[:end], " \t\n") + ` WHERE "user" = $1 ` + q[end:], nil
	}
	return q + ` WHERE "user" = $1`, nil
}

// conditionEnd finds where a clause starting at s[0] ends at its own nesting
// depth: the first trailing keyword outside parentheses, or the ")" closing an
// enclosing group. Quoted text is skipped. ok is false when a quote or
// parenthesis is left open.
func conditionEnd(s string) (int, bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'', '"':
			j := strings.IndexByte(s[i+1:], c)
			if j < 0 {
				return 0, false
			}
			i += j + 1
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return i, true
			}
			depth--
		default:
			if depth == 0 && (i == 0 || !isWordByte(s[i-1])) && tailPattern.MatchString(s[i:]) {
				return i, true
			}
		}
	}
	if depth != 0 {
		return 0, false
	}
	return len(s), true
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
