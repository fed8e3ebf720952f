package runtime

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
)

// ExpressionEvaluator evaluates condition/parameter expressions against
// an ExecutionContext via expr-lang. Eval is pure: the env handed to
// expr-lang contains only plain Go values copied out of the context,
// never a callback into host services or I/O.
type ExpressionEvaluator struct {
	sanitizer *ExpressionSanitizer
}

// NewExpressionEvaluator constructs an evaluator. sanitizer may be nil
// to skip the advisory denylist pass.
func NewExpressionEvaluator(sanitizer *ExpressionSanitizer) *ExpressionEvaluator {
	return &ExpressionEvaluator{sanitizer: sanitizer}
}

// Eval compiles and runs expression against ctx's variables, returning a
// VariableValue. Undefined references evaluate to Null; a sanitizer
// rejection is returned as a *SanitizerError, and any compile/runtime
// error as an *ExpressionError.
func (e *ExpressionEvaluator) Eval(expression string, ctx ExecutionContext) (VariableValue, error) {
	if e.sanitizer != nil {
		if err := e.sanitizer.Check(expression); err != nil {
			return Null, err
		}
	}

	env := buildEnv(ctx.Variables())

	definedFn := expr.Function(
		"defined",
		func(params ...any) (any, error) {
			path, ok := params[0].(string)
			if !ok {
				return false, fmt.Errorf("defined() expects a string path argument, got %T", params[0])
			}
			_, exists := lookupPath(env, path)
			return exists, nil
		},
		new(func(string) bool),
	)

	opts := []expr.Option{
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		definedFn,
	}

	program, err := expr.Compile(expression, opts...)
	if err != nil {
		return Null, &ExpressionError{Expression: expression, Cause: err}
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return Null, &ExpressionError{Expression: expression, Cause: err}
	}

	return FromNative(out), nil
}

// ExpressionError wraps a compile or runtime failure from the
// expression evaluator.
type ExpressionError struct {
	Expression string
	Cause      error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression %q: %s", e.Expression, e.Cause)
}

func (e *ExpressionError) Unwrap() error { return e.Cause }

// buildEnv converts the context's variables into the plain
// map[string]any expr-lang expects as an evaluation environment, plus a
// "null" alias so authored expressions can write `x == null`.
func buildEnv(vars map[string]VariableValue) map[string]any {
	env := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		env[k] = v.ToNative()
	}
	env["null"] = nil
	return env
}

func lookupPath(env map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = env
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, exists := m[part]
		if !exists {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// ExpressionSanitizer rejects expressions containing recognized
// dangerous substrings before they reach the evaluator. Advisory only,
// never a security guarantee: the evaluator itself is pure and
// sandboxed by construction (no I/O, no reflection into host code), so
// the sanitizer exists to catch obviously hostile authoring mistakes,
// not to contain a malicious expression.
type ExpressionSanitizer struct {
	denylist []*regexp.Regexp
}

// defaultDenylist is the stock set of rejected substrings.
var defaultDenylist = []string{`DROP`, `DELETE`, `exec`, `eval`, `System\.`, `Runtime\.`}

// NewExpressionSanitizer builds a sanitizer from the default denylist.
func NewExpressionSanitizer() *ExpressionSanitizer {
	return NewExpressionSanitizerWithPatterns(defaultDenylist)
}

// NewExpressionSanitizerWithPatterns builds a sanitizer from caller
// supplied regexp patterns, for hosts that want a stricter or looser
// policy than the default list.
func NewExpressionSanitizerWithPatterns(patterns []string) *ExpressionSanitizer {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return &ExpressionSanitizer{denylist: compiled}
}

// Check returns a SanitizerError if expression matches any denylisted
// pattern.
func (s *ExpressionSanitizer) Check(expression string) error {
	for _, re := range s.denylist {
		if re.MatchString(expression) {
			return &SanitizerError{Expression: expression, Pattern: re.String()}
		}
	}
	return nil
}

// SanitizerError reports which denylist pattern rejected an expression.
type SanitizerError struct {
	Expression string
	Pattern    string
}

func (e *SanitizerError) Error() string {
	return fmt.Sprintf("expression %q rejected by sanitizer pattern %q", e.Expression, e.Pattern)
}
