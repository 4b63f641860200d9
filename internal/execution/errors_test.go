package execution

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ent0n29/calld/internal/callexpr"
	"github.com/ent0n29/calld/internal/calllog"
	"github.com/ent0n29/calld/internal/modules"
	"github.com/ent0n29/calld/internal/policy"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{fmt.Errorf("%w: x", callexpr.ErrMalformedCall), KindParse},
		{&modules.ModuleNotFoundError{Name: "ghost"}, KindResolution},
		{&modules.FunctionNotFoundError{Module: "cat", Function: "fly"}, KindResolution},
		{&modules.LoadError{Module: "cat", Path: "cat.hcl", Err: errors.New("bad")}, KindResolution},
		{&InvocationError{Module: "cat", Function: "nap", Err: errors.New("tired")}, KindInvocation},
		{fmt.Errorf("query: %w", policy.ErrQueryForbidden), KindForbidden},
		{fmt.Errorf("call 3: %w", calllog.ErrNotFound), KindPersistence},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestInvocationErrorKeepsHandlerMessage(t *testing.T) {
	cause := errors.New("cat is tired")
	err := &InvocationError{Module: "cat", Function: "nap", Err: cause}
	if err.Error() != "cat is tired" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("InvocationError should unwrap to its cause")
	}
}
