package expr

// UndefinedError indicates a name did not resolve in the current Env.
// Per §4.1 this is not fatal in most contexts: conditions fold it to
// false, `set` folds it to an `undefined` marker value plus a log line,
// and interpolation folds it to the empty string.
type UndefinedError struct {
	Name string
}

func (e *UndefinedError) Error() string {
	return "expr: undefined: " + e.Name
}

// TypeError indicates an operation was applied to an incompatible value
// (e.g. indexing a scalar, comparing incomparable types).
type TypeError struct {
	Message string
}

func (e *TypeError) Error() string {
	return "expr: " + e.Message
}

// SyntaxError indicates the source text could not be parsed.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string {
	return "expr: syntax error: " + e.Message
}
