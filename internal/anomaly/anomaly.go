// Package anomaly provides pluggable anomaly predicates for the
// per-customer monitoring window: a fixed transaction-count threshold
// and a CEL-compiled expression over window aggregates.
package anomaly

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// WindowStats are the aggregates available to a predicate for one
// closed per-customer window.
type WindowStats struct {
	TxCount       int
	TotalAmount   float64
	MaxAmount     float64
	WindowSeconds int
}

// Predicate decides whether a closed window is anomalous.
type Predicate interface {
	Anomalous(stats WindowStats) (bool, error)

	// Describe returns a short human-readable description used in the
	// emitted alert.
	Describe() string
}

// ThresholdPredicate fires when the window's transaction count strictly
// exceeds Threshold.
type ThresholdPredicate struct {
	Threshold int
}

// Anomalous implements Predicate.
func (p *ThresholdPredicate) Anomalous(stats WindowStats) (bool, error) {
	return stats.TxCount > p.Threshold, nil
}

// Describe implements Predicate.
func (p *ThresholdPredicate) Describe() string {
	return fmt.Sprintf("more than %d transactions in window", p.Threshold)
}

// CELPredicate evaluates a pre-compiled CEL expression over the window
// aggregates. The expression must return bool.
type CELPredicate struct {
	expression string
	program    cel.Program
}

// NewCELPredicate compiles an expression such as
// "tx_count > 3 && total_amount > 10000.0".
func NewCELPredicate(expression string) (*CELPredicate, error) {
	env, err := cel.NewEnv(
		cel.Variable("tx_count", cel.IntType),
		cel.Variable("total_amount", cel.DoubleType),
		cel.Variable("max_amount", cel.DoubleType),
		cel.Variable("window_seconds", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile anomaly expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("anomaly expression must return bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create anomaly program: %w", err)
	}

	return &CELPredicate{expression: expression, program: program}, nil
}

// Anomalous implements Predicate.
func (p *CELPredicate) Anomalous(stats WindowStats) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{
		"tx_count":       int64(stats.TxCount),
		"total_amount":   stats.TotalAmount,
		"max_amount":     stats.MaxAmount,
		"window_seconds": int64(stats.WindowSeconds),
	})
	if err != nil {
		return false, fmt.Errorf("anomaly evaluation: %w", err)
	}
	result, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("anomaly expression returned %T, want bool", out)
	}
	return bool(result), nil
}

// Describe implements Predicate.
func (p *CELPredicate) Describe() string {
	return "matched expression: " + p.expression
}
