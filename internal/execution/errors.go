package execution

import (
	"errors"
	"fmt"

	"github.com/ent0n29/calld/internal/callexpr"
	"github.com/ent0n29/calld/internal/modules"
	"github.com/ent0n29/calld/internal/policy"
)

// Kind is the failure class of a dispatch.
type Kind string

const (
	KindNone        Kind = ""
	KindParse       Kind = "parse"
	KindResolution  Kind = "resolution"
	KindInvocation  Kind = "invocation"
	KindPersistence Kind = "persistence"
	KindForbidden   Kind = "forbidden"
)

// InvocationError wraps an error raised by a handler function.
type InvocationError struct {
	Module   string
	Function string
	Err      error
}

// Error is the handler's own message so callers see exactly what it raised.
func (e *InvocationError) Error() string { return e.Err.Error() }

func (e *InvocationError) Unwrap() error { return e.Err }

// Classify maps err onto the dispatch error taxonomy.
func Classify(err error) Kind {
	var (
		invErr  *InvocationError
		loadErr *modules.LoadError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &invErr):
		return KindInvocation
	case errors.Is(err, callexpr.ErrMalformedCall):
		return KindParse
	case errors.Is(err, modules.ErrModuleNotFound),
		errors.Is(err, modules.ErrFunctionNotFound),
		errors.As(err, &loadErr):
		return KindResolution
	case errors.Is(err, policy.ErrQueryForbidden):
		return KindForbidden
	default:
		return KindPersistence
	}
}

func invocationError(call callexpr.ParsedCall, err error) error {
	if err == nil {
		err = fmt.Errorf("%s.%s failed", call.Module, call.Function)
	}
	return &InvocationError{Module: call.Module, Function: call.Function, Err: err}
}
