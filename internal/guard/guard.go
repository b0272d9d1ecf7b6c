// Package guard rejects store transitions that violate CEL rules.
//
// Each rule is a boolean CEL expression over two variables, `state` (the
// candidate next state) and `prev` (the current state), both typed
// map(string, dyn). A rule that evaluates to false rejects the transition.
package guard

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
)

// ErrRejected is wrapped by every rule rejection
var ErrRejected = errors.New("transition rejected")

// Rule is a named CEL expression that must hold for a transition to commit
type Rule struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expr" json:"expr"`
	Message    string `yaml:"message,omitempty" json:"message,omitempty"`
}

// RejectedError reports which rule rejected a transition
type RejectedError struct {
	Rule    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s by rule %q: %s", ErrRejected, e.Rule, e.Message)
	}
	return fmt.Sprintf("%s by rule %q", ErrRejected, e.Rule)
}

// Unwrap lets errors.Is match ErrRejected
func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// Guard evaluates a fixed set of compiled rules
type Guard struct {
	rules []compiledRule
}

// Compile builds a Guard. It fails on the first rule that does not parse or
// type-check.
func Compile(rules []Rule) (*Guard, error) {
	env, err := cel.NewEnv(
		cel.Variable("state", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("prev", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	g := &Guard{rules: make([]compiledRule, 0, len(rules))}
	seen := make(map[string]bool, len(rules))

	for i, rule := range rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("rule %d: name cannot be empty", i)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("rule %q: duplicate name", rule.Name)
		}
		seen[rule.Name] = true

		if rule.Expression == "" {
			return nil, fmt.Errorf("rule %q: expression cannot be empty", rule.Name)
		}

		ast, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, issues.Err())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: failed to build program: %w", rule.Name, err)
		}

		g.rules = append(g.rules, compiledRule{rule: rule, program: program})
	}

	return g, nil
}

// Len returns the number of rules
func (g *Guard) Len() int {
	if g == nil {
		return 0
	}
	return len(g.rules)
}

// Names returns rule names in evaluation order
func (g *Guard) Names() []string {
	if g == nil {
		return nil
	}
	names := make([]string, len(g.rules))
	for i, r := range g.rules {
		names[i] = r.rule.Name
	}
	return names
}

// Check evaluates rules in order against a candidate transition. The first
// rule yielding false produces a *RejectedError; a rule that errors or does
// not yield a bool produces a plain error.
func (g *Guard) Check(prev, next map[string]any) error {
	if g == nil {
		return nil
	}

	if prev == nil {
		prev = map[string]any{}
	}
	if next == nil {
		next = map[string]any{}
	}
	activation := map[string]any{
		"state": next,
		"prev":  prev,
	}

	for _, r := range g.rules {
		out, _, err := r.program.Eval(activation)
		if err != nil {
			return fmt.Errorf("rule %q: evaluation failed: %w", r.rule.Name, err)
		}

		ok, isBool := out.Value().(bool)
		if !isBool {
			return fmt.Errorf("rule %q: expected bool result, got %T", r.rule.Name, out.Value())
		}
		if !ok {
			return &RejectedError{Rule: r.rule.Name, Message: r.rule.Message}
		}
	}

	return nil
}
