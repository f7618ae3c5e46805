package expr

import "fmt"

func truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int64:
		return x != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

func toFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func toInt(v Value) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func equal(a, b Value) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) && sameKind(a, b)
}

func sameKind(a, b Value) bool {
	switch a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	case nil:
		return b == nil
	default:
		return true
	}
}

func compare(op tokenKind, a, b Value) (Value, error) {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return compareOrdered(op, as < bs, as == bs, as > bs), nil
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return nil, &TypeError{Message: "cannot compare non-numeric values"}
	}
	return compareOrdered(op, af < bf, af == bf, af > bf), nil
}

func compareOrdered(op tokenKind, lt, eq, gt bool) bool {
	switch op {
	case tokLt:
		return lt
	case tokLte:
		return lt || eq
	case tokGt:
		return gt
	case tokGte:
		return gt || eq
	}
	return false
}

func arith(op tokenKind, a, b Value) (Value, error) {
	if op == tokPlus {
		if as, ok := a.(string); ok {
			if bs, ok := b.(string); ok {
				return as + bs, nil
			}
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return nil, &TypeError{Message: "arithmetic on non-numeric values"}
	}
	var r float64
	switch op {
	case tokPlus:
		r = af + bf
	case tokMinus:
		r = af - bf
	case tokStar:
		r = af * bf
	case tokSlash:
		if bf == 0 {
			return nil, &TypeError{Message: "division by zero"}
		}
		r = af / bf
	}
	_, aIsInt := a.(int64)
	_, bIsInt := b.(int64)
	if aIsInt && bIsInt && op != tokSlash {
		return int64(r), nil
	}
	return r, nil
}
