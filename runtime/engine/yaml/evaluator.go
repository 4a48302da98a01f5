package yaml

import (
	"fmt"
	"strings"

	"github.com/BDNK1/wizflow/runtime"
	"github.com/Jeffail/gabs/v2"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Functions available in every journey expression.
var exprFunctions = []expr.Option{
	// defined(answers, "abstractionPeriod.startDay") reports whether a
	// dotted path exists, even when its value is null.
	expr.Function(
		"defined",
		func(params ...any) (any, error) {
			path, ok := params[1].(string)
			if !ok {
				return false, fmt.Errorf("defined() expects a string path, got %T", params[1])
			}
			m, ok := params[0].(map[string]any)
			if !ok {
				return false, nil
			}
			return gabs.Wrap(m).ExistsP(path), nil
		},
		new(func(any, string) bool),
	),
	expr.Function(
		"day_month",
		func(params ...any) (any, error) {
			s, _ := params[0].(string)
			return runtime.IsDayMonth(s), nil
		},
		new(func(any) bool),
	),
	// empty treats nil, "" and empty lists and maps alike.
	expr.Function(
		"empty",
		func(params ...any) (any, error) {
			switch v := params[0].(type) {
			case nil:
				return true, nil
			case string:
				return strings.TrimSpace(v) == "", nil
			case []string:
				return len(v) == 0, nil
			case []any:
				return len(v) == 0, nil
			case map[string]any:
				return len(v) == 0, nil
			default:
				return false, nil
			}
		},
		new(func(any) bool),
	),
}

// compileEnv fixes the names an expression may refer to.
var compileEnv = map[string]any{
	"answers": map[string]any{},
	"flags":   map[string]any{},
	"items":   []any{},
	"item":    map[string]any{},
	"index":   0,
	"payload": map[string]any{},
}

// Expression is a compiled journey expression.
type Expression struct {
	Source  string
	program *vm.Program
}

// Evaluator compiles and runs journey expressions with expr-lang.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Compile checks source against the journey environment. Unknown
// top-level names are compile errors.
func (e *Evaluator) Compile(source string) (*Expression, error) {
	opts := []expr.Option{expr.Env(compileEnv)}
	opts = append(opts, exprFunctions...)

	program, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	return &Expression{Source: source, program: program}, nil
}

func (e *Evaluator) Run(ex *Expression, env map[string]any) (any, error) {
	return expr.Run(ex.program, env)
}

// Bool runs ex and requires a boolean result.
func (e *Evaluator) Bool(ex *Expression, env map[string]any) (bool, error) {
	out, err := e.Run(ex, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q evaluated to %T, expected boolean", ex.Source, out)
	}
	return b, nil
}
