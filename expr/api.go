package expr

import (
	"strings"
)

// Expr is a compiled expression, ready to evaluate against any Env.
type Expr struct {
	src  string
	root node
}

// String returns the original source text.
func (e *Expr) String() string { return e.src }

// Compile parses src into an Expr. Call once at flow-compile time and
// reuse the result across turns; re-parsing per turn would be wasted
// work on the hot path.
func Compile(src string) (*Expr, error) {
	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Expr{src: src, root: root}, nil
}

// MustCompile is like Compile but panics on error, for package-level
// expression tables built from trusted literals.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Eval evaluates the expression against env, returning the raw typed
// result and any evaluation error (including undefined-name errors).
func (e *Expr) Eval(env Env) (Value, error) {
	return e.root.eval(env)
}

// Condition evaluates the expression as a total boolean: any error
// (undefined name, type mismatch) folds to false rather than
// propagating. Used for `when` guards and branch conditions (§4.1, §4.6).
func (e *Expr) Condition(env Env) bool {
	return EvalCondition(e.root, env)
}

// CompileAll compiles each of conds and returns a combined Expr whose
// Condition is true only when every sub-condition is true, matching
// branch's structured `all:` form (§4.6).
func CompileAll(conds []string) (*Expr, error) {
	parts := make([]node, 0, len(conds))
	for _, c := range conds {
		n, err := parse(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, n)
	}
	return &Expr{src: strings.Join(conds, " and "), root: allNode{parts: parts}}, nil
}

// CompileAny is CompileAll's `any:` counterpart: true when at least one
// sub-condition is true.
func CompileAny(conds []string) (*Expr, error) {
	parts := make([]node, 0, len(conds))
	for _, c := range conds {
		n, err := parse(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, n)
	}
	return &Expr{src: strings.Join(conds, " or "), root: anyNode{parts: parts}}, nil
}

// EvalForSet evaluates the expression for a `set` step assignment
// (§4.5): an undefined name yields (nil, false, nil) — ok=false marks
// the value as undefined and signals the caller should log a warning;
// any other evaluation error is returned as-is.
func (e *Expr) EvalForSet(env Env) (Value, bool, error) {
	v, err := e.root.eval(env)
	if err != nil {
		if isUndefined(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}
