package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionRegistryRegisterResolve(t *testing.T) {
	r := NewActionRegistry()
	_, ok := r.Resolve("search_flights")
	assert.False(t, ok)

	r.Register("search_flights", func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		return map[string]any{"results": []any{"UA1"}}, nil
	})

	h, ok := r.Resolve("search_flights")
	require.True(t, ok)
	out, err := h(context.Background(), map[string]any{"origin": "NYC"})
	require.NoError(t, err)
	assert.Equal(t, []any{"UA1"}, out["results"])
}

func TestActionRegistryMustResolvePanicsOnMiss(t *testing.T) {
	r := NewActionRegistry()
	assert.Panics(t, func() { r.MustResolve("nope") })
}

func TestValidatorRegistry(t *testing.T) {
	r := NewValidatorRegistry()
	r.Register("is_positive", func(ctx context.Context, value any) (bool, string, error) {
		n, ok := value.(int64)
		if !ok || n <= 0 {
			return false, "must be positive", nil
		}
		return true, "", nil
	})

	fn, ok := r.Resolve("is_positive")
	require.True(t, ok)
	okResult, msg, err := fn(context.Background(), int64(5))
	require.NoError(t, err)
	assert.True(t, okResult)
	assert.Empty(t, msg)

	okResult, msg, err = fn(context.Background(), int64(-1))
	require.NoError(t, err)
	assert.False(t, okResult)
	assert.Equal(t, "must be positive", msg)
}

func TestNormalizerRegistry(t *testing.T) {
	r := NewNormalizerRegistry()
	r.Register("upper", func(ctx context.Context, value any) (any, error) {
		s, _ := value.(string)
		return s + "!", nil
	})

	fn, ok := r.Resolve("upper")
	require.True(t, ok)
	out, err := fn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)
}

func TestNormalizationCacheHitsSkipInvocation(t *testing.T) {
	cache := NewNormalizationCache(time.Minute)
	calls := 0
	fn := func(ctx context.Context, value any) (any, error) {
		calls++
		return value.(string) + "-normalized", nil
	}

	v1, err := cache.Apply(context.Background(), "city", "nyc", fn)
	require.NoError(t, err)
	v2, err := cache.Apply(context.Background(), "city", "nyc", fn)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, calls)
}

func TestNormalizationCacheExpiresAfterTTL(t *testing.T) {
	cache := NewNormalizationCache(time.Millisecond)
	calls := 0
	fn := func(ctx context.Context, value any) (any, error) {
		calls++
		return value, nil
	}

	_, err := cache.Apply(context.Background(), "n", "v", fn)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = cache.Apply(context.Background(), "n", "v", fn)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}
