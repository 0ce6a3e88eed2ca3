package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBadger(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := openTestBadger(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"total":3}`), time.Minute))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":3}`, string(v))

	assert.NoError(t, s.Ping(ctx))
}

func TestBadgerStore_Expires(t *testing.T) {
	ctx := context.Background()
	s := openTestBadger(t)

	require.NoError(t, s.Set(ctx, "short", []byte("1"), time.Second))
	assert.Eventually(t, func() bool {
		_, err := s.Get(ctx, "short")
		return err == ErrCacheMiss
	}, 5*time.Second, 100*time.Millisecond)
}

func TestBadgerStore_WithMemoizer(t *testing.T) {
	ctx := context.Background()
	m := NewMemoizer(openTestBadger(t), time.Minute, nil)
	key := NewKey("leaderboard").Part("task")

	calls := 0
	for i := 0; i < 3; i++ {
		v, err := Memoize(ctx, m, key, func(context.Context) (payload, error) {
			calls++
			return payload{Total: 9}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(9), v.Total)
	}
	assert.Equal(t, 1, calls)
}

func TestOpenBadgerStore_RequiresPath(t *testing.T) {
	_, err := OpenBadgerStore(BadgerConfig{})
	assert.Error(t, err)
}
