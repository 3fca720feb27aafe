// Package filterlang compiles the `filter: predicate on (entry)` expression
// from a lock attempt's data model (§3) into an executable Go func, using
// CEL so callers can express entry predicates as data rather than code.
package filterlang

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Predicate evaluates to false when the enlisted entry should reject the
// attempt (§4.2 step 2: "Evaluate filter(entry); on false → fail the whole
// attempt with distribute=false").
type Predicate func(entry map[string]any) bool

// Filter holds a compiled CEL program over a single `entry` variable.
type Filter struct {
	expression string
	program    cel.Program
}

// Compile builds a Filter from a CEL boolean expression referencing `entry`,
// a map[string]any snapshot of the near-cache entry's visible fields (key,
// value, dht_version, read_count, ...).
func Compile(expression string) (*Filter, error) {
	if expression == "" {
		return nil, fmt.Errorf("filterlang: expression can't be empty")
	}
	env, err := cel.NewEnv(
		cel.Variable("entry", cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("filterlang: creating CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("filterlang: compiling expression %q: %w", expression, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("filterlang: building program: %w", err)
	}
	return &Filter{expression: expression, program: prg}, nil
}

// MustCompile is Compile but panics on error, for package-level filters
// known to be valid at init time.
func MustCompile(expression string) *Filter {
	f, err := Compile(expression)
	if err != nil {
		panic(err)
	}
	return f
}

// Expression returns the source CEL expression this Filter was compiled from.
func (f *Filter) Expression() string {
	return f.expression
}

// Eval runs the compiled predicate against entry and reports whether it
// passed. A CEL evaluation error or a non-boolean result is treated as a
// rejection (false) — a broken filter must never silently admit an entry.
func (f *Filter) Eval(entry map[string]any) bool {
	out, _, err := f.program.Eval(map[string]any{"entry": entry})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// AsPredicate adapts Filter to the Predicate func shape LockAttempt.filter
// expects.
func (f *Filter) AsPredicate() Predicate {
	return f.Eval
}

// Always returns a Predicate that accepts every entry — the default when a
// lock attempt specifies no filter.
func Always() Predicate {
	return func(map[string]any) bool { return true }
}
