// Package callexpr parses textual call expressions of the form
// module.function(arg1, arg2, ...) and coerces their argument tokens into
// typed values.
package callexpr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedCall is returned when the input is not a single
// module.function(args) expression.
var ErrMalformedCall = errors.New("invalid call format, expected module.function(params)")

var callPattern = regexp.MustCompile(`^([A-Za-z0-9_]+)\.([A-Za-z0-9_]+)\((.*)\)$`)

// ParsedCall is the decomposed form of a call string. It only lives for the
// duration of one dispatch.
type ParsedCall struct {
	Module   string
	Function string
	RawArgs  []string
}

// Args coerces every raw argument independently, preserving order.
func (p ParsedCall) Args() []any {
	out := make([]any, len(p.RawArgs))
	for i, tok := range p.RawArgs {
		out[i] = Coerce(tok)
	}
	return out
}

// Parse validates input against the call grammar and splits it into module,
// function and trimmed argument tokens. Surrounding whitespace of the whole
// input is ignored; anything else outside the grammar is rejected.
func Parse(input string) (ParsedCall, error) {
	m := callPattern.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return ParsedCall{}, fmt.Errorf("%w: %q", ErrMalformedCall, input)
	}
	args, err := splitArgs(m[3])
	if err != nil {
		return ParsedCall{}, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	return ParsedCall{Module: m[1], Function: m[2], RawArgs: args}, nil
}

// splitArgs splits on every comma. Quoting is only checked per token, so a
// quoted string containing a comma ends up as two unbalanced tokens and is
// rejected.
func splitArgs(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts := strings.Split(text, ",")
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		tok := strings.TrimSpace(p)
		if tok == "" {
			return nil, fmt.Errorf("argument %d is empty", i+1)
		}
		if err := checkToken(tok); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out = append(out, tok)
	}
	return out, nil
}

func checkToken(tok string) error {
	if quoted(tok) {
		return nil
	}
	first, last := tok[0], tok[len(tok)-1]
	if first == '"' || first == '\'' || last == '"' || last == '\'' {
		return fmt.Errorf("unmatched quote in %s", tok)
	}
	if strings.ContainsAny(tok, "()") {
		return fmt.Errorf("nested parentheses are not supported: %s", tok)
	}
	return nil
}

func quoted(tok string) bool {
	if len(tok) < 2 {
		return false
	}
	q := tok[0]
	return (q == '"' || q == '\'') && tok[len(tok)-1] == q
}
