// Package filter compiles CEL expressions into account predicates used to
// narrow the rendered graph.
package filter

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// maxCached bounds the number of compiled programs kept for reuse.
const maxCached = 128

// Engine compiles and caches filter expressions.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*Expression
}

// Expression is a compiled account predicate.
type Expression struct {
	Source  string
	program cel.Program
}

// NewEngine creates a filter engine with the account variables declared.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("ring_id", cel.StringType),
		cel.Variable("in_ring", cel.BoolType),
		cel.Variable("in_degree", cel.IntType),
		cel.Variable("out_degree", cel.IntType),
		cel.Variable("volume", cel.DoubleType),
		cel.Variable("tx_count", cel.IntType),
		cel.Variable("total_in", cel.DoubleType),
		cel.Variable("total_out", cel.DoubleType),
		cel.Variable("patterns", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*Expression),
	}, nil
}

// Compile parses and type-checks expr. The expression must yield a bool.
// Invalid expressions are reported as validation errors.
func (e *Engine) Compile(expr string) (*Expression, error) {
	e.mu.RLock()
	cached, ok := e.compiled[expr]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: filter %q: %v", domain.ErrValidation, expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: filter %q must return bool, got %s", domain.ErrValidation, expr, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for filter %q: %w", expr, err)
	}

	compiled := &Expression{Source: expr, program: program}

	e.mu.Lock()
	if len(e.compiled) >= maxCached {
		e.compiled = make(map[string]*Expression)
	}
	e.compiled[expr] = compiled
	e.mu.Unlock()

	return compiled, nil
}

// Match evaluates the expression against an account.
func (x *Expression) Match(a domain.Account) (bool, error) {
	out, _, err := x.program.Eval(activation(a))
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q on %s: %w", x.Source, a.ID, err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %s", x.Source, out.Type())
	}
	return bool(b), nil
}

// Predicate adapts the expression to a plain account predicate.
// Evaluation errors count as no match.
func (x *Expression) Predicate() func(domain.Account) bool {
	return func(a domain.Account) bool {
		ok, err := x.Match(a)
		return err == nil && ok
	}
}

func activation(a domain.Account) map[string]any {
	patterns := a.Patterns
	if patterns == nil {
		patterns = []string{}
	}
	return map[string]any{
		"id":         a.ID,
		"score":      a.SuspicionScore,
		"ring_id":    a.RingID,
		"in_ring":    a.InRing(),
		"in_degree":  int64(a.InDegree),
		"out_degree": int64(a.OutDegree),
		"volume":     a.Volume,
		"tx_count":   int64(a.TransactionCount),
		"total_in":   a.NetworkStats.TotalIn,
		"total_out":  a.NetworkStats.TotalOut,
		"patterns":   patterns,
	}
}
