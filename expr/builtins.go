package expr

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type builtinFunc func(args []Value) (Value, error)

// builtins holds the handful of zero/one-arg functions §4.1 calls out by
// name: today(), now(), uuid(). now()/today() read wall-clock time, so
// they are deliberately excluded from the pure FlowDelta-producing node
// executors' hot path — callers that need determinism should resolve
// them once and bind the result into the Env instead of re-evaluating.
var builtins = map[string]builtinFunc{
	"today": func(args []Value) (Value, error) {
		return time.Now().UTC().Format("2006-01-02"), nil
	},
	"now": func(args []Value) (Value, error) {
		return time.Now().UTC().Format(time.RFC3339), nil
	},
	"uuid": func(args []Value) (Value, error) {
		return uuid.NewString(), nil
	},
	"length": func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, &TypeError{Message: "length() takes exactly one argument"}
		}
		return lengthOf(args[0])
	},
}

func lengthOf(v Value) (Value, error) {
	switch x := v.(type) {
	case string:
		return int64(len([]rune(x))), nil
	case []any:
		return int64(len(x)), nil
	case map[string]any:
		return int64(len(x)), nil
	default:
		return nil, &TypeError{Message: "length() of non-sized value"}
	}
}

type filterFunc func(recv Value, args []Value) (Value, error)

// filters implements the pipe-filter forms used by `{{ expr | filter }}`
// interpolation (§4.1). Kept intentionally small; new filters are cheap
// to add here without touching the grammar.
var filters = map[string]filterFunc{
	"upper": func(recv Value, args []Value) (Value, error) {
		s, ok := recv.(string)
		if !ok {
			return nil, &TypeError{Message: "upper filter expects a string"}
		}
		return strings.ToUpper(s), nil
	},
	"lower": func(recv Value, args []Value) (Value, error) {
		s, ok := recv.(string)
		if !ok {
			return nil, &TypeError{Message: "lower filter expects a string"}
		}
		return strings.ToLower(s), nil
	},
	"title": func(recv Value, args []Value) (Value, error) {
		s, ok := recv.(string)
		if !ok {
			return nil, &TypeError{Message: "title filter expects a string"}
		}
		return strings.Title(s), nil
	},
	"trim": func(recv Value, args []Value) (Value, error) {
		s, ok := recv.(string)
		if !ok {
			return nil, &TypeError{Message: "trim filter expects a string"}
		}
		return strings.TrimSpace(s), nil
	},
	"length": func(recv Value, args []Value) (Value, error) {
		return lengthOf(recv)
	},
	"default": func(recv Value, args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, &TypeError{Message: "default filter takes exactly one argument"}
		}
		if recv == nil {
			return args[0], nil
		}
		if s, ok := recv.(string); ok && s == "" {
			return args[0], nil
		}
		return recv, nil
	},
}
