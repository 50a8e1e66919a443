package condition

import (
	"fmt"
	"strings"

	"github.com/nerrad567/trackside-core/internal/layout"
)

// normalize maps decoded attribute values onto the evaluator's value set:
// nil, bool, float64, string, []any and map[string]any.
func normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, float64, string:
		return v
	case layout.Attributes:
		return map[string]any(val)
	case map[string]any, []any:
		return v
	default:
		if n, ok := layout.ToNumber(v); ok {
			return n
		}
		return v
	}
}

// truthy follows the usual scripting rules: none, false, 0, "" and empty
// collections are false.
func truthy(v any) bool {
	switch val := normalize(v).(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

func typeName(v any) string {
	switch normalize(v).(type) {
	case nil:
		return "none"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "entity"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// equal compares values of the same type. Different types are never equal.
func equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// order returns -1, 0 or 1 for two numbers or two strings.
func order(op string, a, b any) (int, error) {
	a, b = normalize(a), normalize(b)
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			}
			return 0, nil
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, evalError(ErrType, "cannot compare %s %s %s", typeName(a), op, typeName(b))
}

func contains(container, item any) (bool, error) {
	switch c := normalize(container).(type) {
	case []any:
		for _, elem := range c {
			if equal(elem, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := normalize(item).(string)
		if !ok {
			return false, evalError(ErrType, "'in <string>' requires a string, got %s", typeName(item))
		}
		return strings.Contains(c, s), nil
	case map[string]any:
		s, ok := normalize(item).(string)
		if !ok {
			return false, nil
		}
		_, found := c[s]
		return found, nil
	}
	return false, evalError(ErrType, "'in' requires a list, string or entity, got %s", typeName(container))
}

func arith(op string, a, b any) (any, error) {
	a, b = normalize(a), normalize(b)
	if op == "+" {
		if as, ok := a.(string); ok {
			if bs, ok := b.(string); ok {
				return as + bs, nil
			}
		}
	}
	av, aok := a.(float64)
	bv, bok := b.(float64)
	if !aok || !bok {
		return nil, evalError(ErrType, "cannot apply %s to %s and %s", op, typeName(a), typeName(b))
	}
	switch op {
	case "+":
		return av + bv, nil
	case "-":
		return av - bv, nil
	case "*":
		return av * bv, nil
	case "/":
		if bv == 0 {
			return nil, evalError(ErrDivideByZero, "%v / 0", av)
		}
		return av / bv, nil
	}
	return nil, evalError(ErrType, "unknown operator %s", op)
}
