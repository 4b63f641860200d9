package callexpr

import (
	"math"
	"strconv"
	"strings"
)

// Undefined is the value of an argument written as `undefined`. It is kept
// distinct from nil, which is what `null` coerces to.
type Undefined struct{}

func (Undefined) String() string { return "undefined" }

// MarshalJSON renders Undefined the same way as null.
func (Undefined) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Coerce converts one argument token into a typed value. It never fails:
// tokens that match no rule are returned as the trimmed string. Rules are
// checked in order, so a quoted number stays a string.
func Coerce(token string) any {
	tok := strings.TrimSpace(token)
	if quoted(tok) {
		return tok[1 : len(tok)-1]
	}
	switch tok {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	case "undefined":
		return Undefined{}
	}
	if n, ok := parseNumber(tok); ok {
		return n
	}
	return tok
}

// parseNumber returns int64 for decimal integers and float64 for every other
// finite number.
func parseNumber(tok string) (any, bool) {
	if tok == "" {
		return nil, false
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, false
	}
	return f, true
}
