package runner

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotReadOnly is wrapped by every guard rejection.
var ErrNotReadOnly = errors.New("runner: only read-only queries are allowed")

var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|MERGE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET|GRANT|REVOKE|VACUUM)\b`,
)

var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

// CheckReadOnly accepts a single SELECT/WITH statement (one trailing
// semicolon allowed) and returns the statement to execute.
func CheckReadOnly(query string) (string, error) {
	stmt := strings.TrimSpace(query)
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	if stmt == "" {
		return "", fmt.Errorf("%w: query is empty", ErrNotReadOnly)
	}
	if strings.Contains(stmt, ";") {
		return "", fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}

	stripped := strings.TrimSpace(stripSQLComments(stmt))
	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", fmt.Errorf("%w: must start with SELECT or WITH", ErrNotReadOnly)
	}
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return "", fmt.Errorf("%w: disallowed keyword %s", ErrNotReadOnly, strings.ToUpper(match))
	}
	return stmt, nil
}
