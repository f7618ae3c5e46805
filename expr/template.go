package expr

import (
	"fmt"
	"strings"
)

// Template renders message/prompt text containing `{name}` interpolation
// and `{{ expr }}` typed-expression spans (§4.1). Both forms are total:
// an undefined name or evaluation error renders as the empty string
// rather than failing the whole template, so a missing slot degrades a
// sentence instead of blocking the turn.
type Template struct {
	src      string
	segments []templateSegment
}

type templateSegment struct {
	literal string // used when expr == nil
	expr    *Expr
}

// CompileTemplate parses src once; call Render per turn against the
// current Env.
func CompileTemplate(src string) (*Template, error) {
	segs, err := scanTemplate(src)
	if err != nil {
		return nil, err
	}
	return &Template{src: src, segments: segs}, nil
}

// MustCompileTemplate is CompileTemplate but panics on error, for
// package-level response tables built from trusted literals.
func MustCompileTemplate(src string) *Template {
	t, err := CompileTemplate(src)
	if err != nil {
		panic(err)
	}
	return t
}

// Render interpolates the template against env.
func (t *Template) Render(env Env) string {
	var sb strings.Builder
	for _, seg := range t.segments {
		if seg.expr == nil {
			sb.WriteString(seg.literal)
			continue
		}
		v, err := seg.expr.Eval(env)
		if err != nil {
			continue // undefined/type errors render as empty string
		}
		sb.WriteString(stringify(v))
	}
	return sb.String()
}

func stringify(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

// scanTemplate splits src into literal runs and `{...}`/`{{...}}` spans,
// compiling each span as an expression. `{{ ... }}` and `{ ... }` share
// the same expression grammar; the doubled braces are purely a visual
// convention callers use for "this is a computed expression" versus
// "this is a bare field reference", so both are handled identically here.
func scanTemplate(src string) ([]templateSegment, error) {
	var segs []templateSegment
	var lit strings.Builder
	i := 0
	for i < len(src) {
		if src[i] == '{' {
			start := i + 1
			double := false
			if start < len(src) && src[start] == '{' {
				double = true
				start++
			}
			end := strings.Index(src[start:], "}")
			if end < 0 {
				lit.WriteByte(src[i])
				i++
				continue
			}
			end += start
			closeLen := 1
			if double {
				if end+1 >= len(src) || src[end+1] != '}' {
					lit.WriteByte(src[i])
					i++
					continue
				}
				closeLen = 2
			}
			if lit.Len() > 0 {
				segs = append(segs, templateSegment{literal: lit.String()})
				lit.Reset()
			}
			exprSrc := strings.TrimSpace(src[start:end])
			compiled, err := Compile(exprSrc)
			if err != nil {
				return nil, err
			}
			segs = append(segs, templateSegment{expr: compiled})
			i = end + closeLen
			continue
		}
		lit.WriteByte(src[i])
		i++
	}
	if lit.Len() > 0 {
		segs = append(segs, templateSegment{literal: lit.String()})
	}
	return segs, nil
}
