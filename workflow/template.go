package workflow

import (
	"strconv"
	"strings"
)

// Resolve interpolates a string of the form "${expr}". If s is not a
// single ${...} expression spanning the whole string, it is returned
// unchanged. Otherwise the resolved value is returned with its native type
// preserved (not coerced to string).
//
// expr is one of:
//   - a bare variable name
//   - "stepName.dot.path" into a step's recorded output
//   - "lhs || fallback", where fallback is a literal (true/false/[]/number/
//     quoted string) or another expression
func Resolve(s string, ctx *Context) any {
	expr, ok := wholeExpr(s)
	if !ok {
		return s
	}
	return evalExpr(expr, ctx)
}

// wholeExpr reports whether s, once trimmed, is exactly one "${...}" span.
func wholeExpr(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "${") || !strings.HasSuffix(trimmed, "}") {
		return "", false
	}
	return strings.TrimSpace(trimmed[2 : len(trimmed)-1]), true
}

func evalExpr(expr string, ctx *Context) any {
	if lhs, fallback, ok := splitFallback(expr); ok {
		v := evalExpr(lhs, ctx)
		if isDefined(v) {
			return v
		}
		return evalLiteralOrRef(fallback, ctx)
	}
	return resolveReference(expr, ctx)
}

// splitFallback splits "lhs || fallback" on the first top-level "||".
func splitFallback(expr string) (lhs, fallback string, ok bool) {
	idx := strings.Index(expr, "||")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(expr[:idx]), strings.TrimSpace(expr[idx+2:]), true
}

// evalLiteralOrRef interprets a fallback operand: a recognized literal, or
// (failing that) a reference/nested expression.
func evalLiteralOrRef(operand string, ctx *Context) any {
	if v, ok := literal(operand); ok {
		return v
	}
	return evalExpr(operand, ctx)
}

// literal recognizes the fallback literal forms the spec names: true,
// false, [], a number, or a quoted string.
func literal(s string) (any, bool) {
	switch s {
	case "true":
		return true, true
	case "false":
		return false, true
	case "[]":
		return []any{}, true
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, true
	}
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return nil, false
}

// resolveReference resolves a bare variable name or a "stepName.dot.path"
// reference: step outputs are consulted first, then flat variables.
func resolveReference(ref string, ctx *Context) any {
	if ref == "" {
		return nil
	}
	head, rest, hasDot := strings.Cut(ref, ".")
	if hasDot && ctx.HasStep(head) {
		if v, ok := ctx.GetStepOutput(head, rest); ok {
			return v
		}
		return nil
	}
	if v, ok := ctx.GetVariable(head); ok {
		if !hasDot {
			return v
		}
		if m, ok := v.(map[string]any); ok {
			if nested, ok := lookupPath(m, rest); ok {
				return nested
			}
		}
		return nil
	}
	return nil
}

// isDefined reports whether v is present at all. Unlike isTruthy, only nil
// (an unresolved reference) counts as absent here: the "||" fallback
// operator must pass through an explicit false/0/"" rather than replacing
// it, per spec.md §8's literal-value invariant.
func isDefined(v any) bool {
	return v != nil
}

// isTruthy applies JS-like truthiness to a resolved value: nil, false, "",
// and numeric zero are falsy; everything else is truthy.
func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
