package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory(2)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	v, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
	v, err = m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(time.Minute)
	v, err = m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, v, "expired")
	v, err = m.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v, "no ttl")

	require.NoError(t, m.Set(ctx, "c", []byte("3"), 0))
	require.NoError(t, m.Set(ctx, "d", []byte("4"), 0))
	assert.Equal(t, 2, m.Len())
}

func TestMemoryDeletePrefix(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory(10)
	require.NoError(t, err)
	for _, k := range []string{"tabula:remote:a:1", "tabula:remote:a:2", "tabula:remote:b:1"} {
		require.NoError(t, m.Set(ctx, k, []byte(k), 0))
	}
	require.NoError(t, m.DeletePrefix(ctx, tabula.SourcePrefix("a")))
	assert.Equal(t, 1, m.Len())
	v, err := m.Get(ctx, "tabula:remote:b:1")
	require.NoError(t, err)
	assert.NotNil(t, v)
}

type fakeRedis struct {
	values  map[string]string
	ttls    map[string]time.Duration
	scanned []uint64
	failGet error
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failGet != nil {
		return redis.NewStringResult("", f.failGet)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.values[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

// Scan returns one matching key per round.
func (f *fakeRedis) Scan(_ context.Context, cursor uint64, match string, _ int64) *redis.ScanCmd {
	f.scanned = append(f.scanned, cursor)
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range f.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
			break
		}
	}
	if len(keys) == 0 {
		return redis.NewScanCmdResult(nil, 0, nil)
	}
	return redis.NewScanCmdResult(keys, cursor+1, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.values, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedis(t *testing.T) {
	ctx := context.Background()
	f := &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
	r := &Redis{client: f}

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, r.Set(ctx, "k", []byte("rows"), time.Second))
	assert.Equal(t, time.Second, f.ttls["k"])
	v, err = r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("rows"), v)

	f.failGet = errors.New("connection refused")
	_, err = r.Get(ctx, "k")
	assert.ErrorContains(t, err, "connection refused")
}

func TestRedisDeletePrefix(t *testing.T) {
	ctx := context.Background()
	f := &fakeRedis{values: map[string]string{
		"tabula:remote:a:1": "", "tabula:remote:a:2": "", "tabula:remote:b:1": "",
	}, ttls: map[string]time.Duration{}}
	r := &Redis{client: f}
	require.NoError(t, r.DeletePrefix(ctx, tabula.SourcePrefix("a")))
	assert.Equal(t, map[string]string{"tabula:remote:b:1": ""}, f.values)
	assert.Equal(t, []uint64{0, 1, 2}, f.scanned)
}

func TestCacheKey(t *testing.T) {
	k1, err := tabula.CacheKey{Source: "warehouse", Query: "SELECT 1", Args: []any{1, "a"}}.Key()
	require.NoError(t, err)
	k2, err := tabula.CacheKey{Source: "warehouse", Query: "SELECT 1", Args: []any{1, "a"}}.Key()
	require.NoError(t, err)
	k3, err := tabula.CacheKey{Source: "warehouse", Query: "SELECT 1", Args: []any{2, "a"}}.Key()
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.True(t, strings.HasPrefix(k1, tabula.SourcePrefix("warehouse")))
}
