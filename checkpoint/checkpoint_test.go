package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCheckpointerSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCheckpointer()

	_, err := c.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Save(ctx, "sess-1", []byte(`{"session_id":"sess-1"}`)))
	data, err := c.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"sess-1"}`, string(data))

	require.NoError(t, c.Delete(ctx, "sess-1"))
	_, err = c.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCheckpointerSaveDoesNotAliasCallerSlice(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCheckpointer()
	buf := []byte(`{"a":1}`)
	require.NoError(t, c.Save(ctx, "sess-1", buf))
	buf[2] = 'X'

	data, err := c.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))
}

func TestSQLiteCheckpointerSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	c, err := NewSQLiteCheckpointer(":memory:")
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Save(ctx, "sess-1", []byte(`{"session_id":"sess-1"}`)))
	data, err := c.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"sess-1"}`, string(data))

	require.NoError(t, c.Save(ctx, "sess-1", []byte(`{"session_id":"sess-1","turn_count":2}`)))
	data, err = c.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"sess-1","turn_count":2}`, string(data))

	require.NoError(t, c.Delete(ctx, "sess-1"))
	_, err = c.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisCheckpointerSaveLoadDelete(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCheckpointerFromClient(client, time.Minute)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Save(ctx, "sess-1", []byte(`{"session_id":"sess-1"}`)))
	data, err := c.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"sess-1"}`, string(data))

	mr.FastForward(2 * time.Minute)
	_, err = c.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
