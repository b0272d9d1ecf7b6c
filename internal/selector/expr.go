package selector

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprparser "github.com/expr-lang/expr/parser"
	exprvm "github.com/expr-lang/expr/vm"

	"storekit/internal/store"
)

// ErrEmptyExpression is returned when compiling an empty expression
var ErrEmptyExpression = errors.New("selector expression must not be empty")

// maxPrograms bounds the per-shape program cache of one Expr
const maxPrograms = 64

// Expr is a compiled expr-lang selector over a document state.
//
// Top-level state keys are available as variables, and the whole document is
// available as `state`, e.g. `count * 2`, `state.user.name`, or
// `filter(todos, {.done})`. A state key takes precedence over a builtin of the
// same name, so `count` is the document's count, not the builtin.
//
// Programs are type-checked against the state they run on and cached by the
// names and types of its top-level keys.
type Expr struct {
	source string

	mu       sync.Mutex
	programs map[string]*exprvm.Program
}

// CompileExpr parses a selector expression. Type errors surface from Eval,
// once the shape of the state is known.
func CompileExpr(expression string) (*Expr, error) {
	if expression == "" {
		return nil, ErrEmptyExpression
	}

	if _, err := exprparser.Parse(expression); err != nil {
		return nil, fmt.Errorf("failed to compile selector %q: %w", expression, err)
	}

	return &Expr{source: expression, programs: make(map[string]*exprvm.Program)}, nil
}

// String returns the expression source
func (e *Expr) String() string {
	return e.source
}

// Eval evaluates the expression against state
func (e *Expr) Eval(state store.Map) (any, error) {
	env := make(map[string]any, len(state)+1)
	for key, value := range state {
		env[key] = value
	}
	env["state"] = state

	program, err := e.program(env)
	if err != nil {
		return nil, err
	}

	out, err := exprlang.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate selector %q: %w", e.source, err)
	}
	return out, nil
}

func (e *Expr) program(env map[string]any) (*exprvm.Program, error) {
	shape := envShape(env)

	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.programs[shape]; ok {
		return program, nil
	}

	program, err := exprlang.Compile(e.source,
		exprlang.Env(env),
		exprlang.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile selector %q: %w", e.source, err)
	}

	if len(e.programs) >= maxPrograms {
		clear(e.programs)
	}
	e.programs[shape] = program
	return program, nil
}

// envShape identifies the variables a program is checked against
func envShape(env map[string]any) string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, "%s:%T;", key, env[key])
	}
	return b.String()
}

// Func adapts the expression to a selector. Evaluation errors yield nil.
func (e *Expr) Func() Func[store.Map, any] {
	return func(state store.Map) any {
		out, err := e.Eval(state)
		if err != nil {
			return nil
		}
		return out
	}
}
