package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrecedenceNotBindsTighterThanAnd(t *testing.T) {
	e, err := Compile("not a and b")
	require.NoError(t, err)
	// (not a) and b -> false and false -> false; not (a and b) would be true
	assert.False(t, e.Condition(MapEnv{"a": true, "b": false}))
}

func TestPrecedenceAndBindsTighterThanOr(t *testing.T) {
	e, err := Compile("a or b and c")
	require.NoError(t, err)
	// a or (b and c); a=true, b=false, c=false -> true; (a or b) and c would be false
	assert.True(t, e.Condition(MapEnv{"a": true, "b": false, "c": false}))
}

func TestComparisonAndArithmetic(t *testing.T) {
	e, err := Compile("age + 1 >= 18")
	require.NoError(t, err)
	assert.True(t, e.Condition(MapEnv{"age": int64(17)}))
	assert.False(t, e.Condition(MapEnv{"age": int64(10)}))
}

func TestMemberAccess(t *testing.T) {
	e, err := Compile("flow.origin == \"NYC\"")
	require.NoError(t, err)
	env := MapEnv{"flow": map[string]any{"origin": "NYC"}}
	assert.True(t, e.Condition(env))
}

func TestConditionIsTotalOnUndefined(t *testing.T) {
	e, err := Compile("missing == \"x\"")
	require.NoError(t, err)
	assert.False(t, e.Condition(MapEnv{}))
}

func TestNotUndefinedIsTrue(t *testing.T) {
	e, err := Compile("not missing")
	require.NoError(t, err)
	assert.True(t, e.Condition(MapEnv{}))
}

func TestCompileAllAndAny(t *testing.T) {
	all, err := CompileAll([]string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, all.Condition(MapEnv{"a": true, "b": true}))
	assert.False(t, all.Condition(MapEnv{"a": true, "b": false}))

	any, err := CompileAny([]string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, any.Condition(MapEnv{"a": false, "b": true}))
	assert.False(t, any.Condition(MapEnv{"a": false, "b": false}))
}

func TestEvalForSetFoldsUndefinedToMarker(t *testing.T) {
	e, err := Compile("missing")
	require.NoError(t, err)
	v, ok, err := e.EvalForSet(MapEnv{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestBuiltinUUIDReturnsNonEmptyString(t *testing.T) {
	e, err := Compile("uuid()")
	require.NoError(t, err)
	v, err := e.Eval(MapEnv{})
	require.NoError(t, err)
	s, ok := v.(string)
	require.True(t, ok)
	assert.NotEmpty(t, s)
}

func TestFiltersUpperAndLength(t *testing.T) {
	e, err := Compile("name | upper")
	require.NoError(t, err)
	v, err := e.Eval(MapEnv{"name": "ana"})
	require.NoError(t, err)
	assert.Equal(t, "ANA", v)

	e2, err := Compile("name | length")
	require.NoError(t, err)
	v2, err := e2.Eval(MapEnv{"name": "ana"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), v2)
}

func TestTemplateInterpolation(t *testing.T) {
	tpl, err := CompileTemplate("Hello {name}, total is {{ price * qty }}")
	require.NoError(t, err)
	out := tpl.Render(MapEnv{"name": "Ana", "price": int64(3), "qty": int64(2)})
	assert.Equal(t, "Hello Ana, total is 6", out)
}

func TestTemplateUndefinedRendersEmpty(t *testing.T) {
	tpl, err := CompileTemplate("Hi {name}!")
	require.NoError(t, err)
	out := tpl.Render(MapEnv{})
	assert.Equal(t, "Hi !", out)
}

func TestChainEnvPrefersHead(t *testing.T) {
	env := ChainEnv{Head: MapEnv{"x": int64(1)}, Tail: MapEnv{"x": int64(2), "y": int64(3)}}
	e := MustCompile("x + y")
	v, err := e.Eval(env)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
}
