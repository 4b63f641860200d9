package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrQueryForbidden is returned for any custom query that is not a single
// read-only SELECT statement.
var ErrQueryForbidden = errors.New("only read-only SELECT queries are allowed")

var (
	readOnlyPrefix = regexp.MustCompile(`(?i)^select\b`)
	// Checked after string literals and comments are blanked out.
	blockedQueryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`;\s*\S`),
		regexp.MustCompile(`(?i)\binto\b`),
		regexp.MustCompile(`(?i)\bfor\s+(update|share|no\s+key\s+update|key\s+share)\b`),
	}
	literalPattern = regexp.MustCompile(`'(?:[^']|'')*'|"(?:[^"]|"")*"`)
	commentPattern = regexp.MustCompile(`(?s)--[^\n]*|/\*.*?\*/`)
)

// CheckQuery accepts only statements that textually start with SELECT and
// contain nothing after the first statement.
func CheckQuery(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return fmt.Errorf("%w: empty query", ErrQueryForbidden)
	}
	if !readOnlyPrefix.MatchString(q) {
		return fmt.Errorf("%w: statement must start with SELECT", ErrQueryForbidden)
	}
	bare := literalPattern.ReplaceAllString(q, "''")
	bare = commentPattern.ReplaceAllString(bare, " ")
	for _, re := range blockedQueryPatterns {
		if loc := re.FindStringIndex(bare); loc != nil {
			return fmt.Errorf("%w: unexpected %q", ErrQueryForbidden, strings.TrimSpace(bare[loc[0]:loc[1]]))
		}
	}
	return nil
}
