package modules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// FileExt is the extension of handler module files.
const FileExt = ".hcl"

// DirSource loads modules from <dir>/<name>.hcl. Only files directly inside
// dir are modules.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: filepath.Clean(dir)}
}

func (s *DirSource) Dir() string { return s.dir }

func (s *DirSource) Load(_ context.Context, name string) (*Module, error) {
	if !ValidName(name) {
		return nil, &ModuleNotFoundError{Name: name}
	}
	path := filepath.Join(s.dir, name+FileExt)
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ModuleNotFoundError{Name: name}
	}
	if err != nil {
		return nil, &LoadError{Module: name, Path: path, Err: err}
	}
	m, err := parseModule(name, path, src)
	if err != nil {
		return nil, &LoadError{Module: name, Path: path, Err: err}
	}
	return m, nil
}

func (s *DirSource) Names(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != FileExt {
			continue
		}
		name := strings.TrimSuffix(e.Name(), FileExt)
		if ValidName(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

type moduleFile struct {
	Functions []*functionBlock `hcl:"function,block"`
}

type functionBlock struct {
	Name          string         `hcl:"name,label"`
	Params        hcl.Expression `hcl:"params"`
	VariadicParam hcl.Expression `hcl:"variadic_param,optional"`
	Result        hcl.Expression `hcl:"result"`
}

// Limits applied to one top-level invocation of a handler function. HCL
// evaluates both arms of a conditional, so recursion never bottoms out on its
// own.
const (
	maxCallDepth = 128
	maxCalls     = 100000
)

// compiledFunction is a function block with its parameter list decoded.
type compiledFunction struct {
	name     string
	params   []string
	variadic string
	result   hcl.Expression
}

// callBudget counts nested and total calls within one invocation.
type callBudget struct {
	depth int
	calls int
}

func (b *callBudget) enter() error {
	if b.depth >= maxCallDepth {
		return &FailError{Message: "maximum call depth exceeded"}
	}
	if b.calls >= maxCalls {
		return &FailError{Message: "maximum number of calls exceeded"}
	}
	b.depth++
	b.calls++
	return nil
}

func (b *callBudget) leave() { b.depth-- }

// parseModule parses src from scratch; nothing is shared between loads.
// Functions see the standard library and every function of their own module.
func parseModule(name, path string, src []byte) (*Module, error) {
	file, diags := hclsyntax.ParseConfig(src, path, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	var root moduleFile
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, diags
	}

	fns := make([]*compiledFunction, 0, len(root.Functions))
	seen := make(map[string]struct{}, len(root.Functions))
	for _, fb := range root.Functions {
		if !ValidName(fb.Name) {
			return nil, fmt.Errorf("invalid function name %q", fb.Name)
		}
		if _, dup := seen[fb.Name]; dup {
			return nil, fmt.Errorf("function %q declared more than once", fb.Name)
		}
		seen[fb.Name] = struct{}{}
		cf, err := fb.compile()
		if err != nil {
			return nil, err
		}
		fns = append(fns, cf)
	}

	m := NewModule(name, path)
	for _, cf := range fns {
		m.Define(cf.name, entryPoint(fns, cf.name))
	}
	return m, nil
}

func (fb *functionBlock) compile() (*compiledFunction, error) {
	exprs, diags := hcl.ExprList(fb.Params)
	if diags.HasErrors() {
		return nil, fmt.Errorf("function %s: %w", fb.Name, diags)
	}
	params := make([]string, 0, len(exprs))
	for _, e := range exprs {
		p := hcl.ExprAsKeyword(e)
		if p == "" {
			return nil, fmt.Errorf("function %s: parameter names must be bare identifiers", fb.Name)
		}
		params = append(params, p)
	}
	return &compiledFunction{
		name:     fb.Name,
		params:   params,
		variadic: hcl.ExprAsKeyword(fb.VariadicParam),
		result:   fb.Result,
	}, nil
}

// bind turns cf into a cty function evaluated against base and charged to
// budget.
func (cf *compiledFunction) bind(base *hcl.EvalContext, budget *callBudget) function.Function {
	spec := &function.Spec{Type: function.StaticReturnType(cty.DynamicPseudoType)}
	for _, p := range cf.params {
		spec.Params = append(spec.Params, dynamicParam(p))
	}
	if cf.variadic != "" {
		vp := dynamicParam(cf.variadic)
		spec.VarParam = &vp
	}

	spec.Impl = func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if err := budget.enter(); err != nil {
			return cty.NilVal, err
		}
		defer budget.leave()

		vars := make(map[string]cty.Value, len(cf.params)+1)
		for i, p := range cf.params {
			vars[p] = args[i]
		}
		if cf.variadic != "" {
			rest := args[len(cf.params):]
			if len(rest) == 0 {
				vars[cf.variadic] = cty.EmptyTupleVal
			} else {
				vars[cf.variadic] = cty.TupleVal(rest)
			}
		}
		ctx := base.NewChild()
		ctx.Variables = vars
		v, diags := cf.result.Value(ctx)
		if diags.HasErrors() {
			return cty.NilVal, diagnosticsError(diags)
		}
		return v, nil
	}
	return function.New(spec)
}

func dynamicParam(name string) function.Parameter {
	return function.Parameter{
		Name:             name,
		Type:             cty.DynamicPseudoType,
		AllowNull:        true,
		AllowDynamicType: true,
	}
}

// diagnosticsError surfaces a fail()/assert() message as-is instead of the
// full diagnostic text.
func diagnosticsError(diags hcl.Diagnostics) error {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		extra, ok := hcl.DiagnosticExtra[hclsyntax.FunctionCallDiagExtra](d)
		if !ok {
			continue
		}
		var failed *FailError
		if errors.As(extra.FunctionCallError(), &failed) {
			return failed
		}
	}
	return diags
}

// entryPoint returns the handler for the function called name. Every call binds the
// module's functions to a fresh evaluation context and call budget, so
// concurrent invocations share no state.
func entryPoint(fns []*compiledFunction, name string) Func {
	return func(_ context.Context, args []any) (any, error) {
		vals := make([]cty.Value, len(args))
		for i, a := range args {
			v, err := ToCty(a)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i+1, err)
			}
			vals[i] = v
		}

		budget := &callBudget{}
		evalCtx := &hcl.EvalContext{Functions: standardFunctions()}
		for _, cf := range fns {
			evalCtx.Functions[cf.name] = cf.bind(evalCtx, budget)
		}
		out, err := evalCtx.Functions[name].Call(vals)
		if err != nil {
			return nil, err
		}
		return FromCty(out)
	}
}
