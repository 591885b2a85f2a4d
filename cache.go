package tabula

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores the rows fetched from remote sources for cross-source
// relations. Implementations live in contrib/cache (in-memory and Redis).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// cacheNamespace scopes the SHA-1 UUIDs of cache keys.
var cacheNamespace = uuid.MustParse("9d7c1f0e-4b8a-4e53-a1f6-2c0d3e5b7a91")

// CacheKey identifies the result of a remote fetch.
type CacheKey struct {
	Source string
	Query  string
	Args   []any
}

// Prefix returns the prefix shared by all keys of the source.
func (k CacheKey) Prefix() string {
	return SourcePrefix(k.Source)
}

// SourcePrefix returns the prefix of the cache keys of a source, for
// Cache.DeletePrefix when the source changes.
func SourcePrefix(source string) string {
	return "tabula:remote:" + source + ":"
}

// Key returns the cache key. Equal queries with equal arguments map to
// the same key.
func (k CacheKey) Key() (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(k.Query); err != nil {
		return "", fmt.Errorf("tabula: encode cache key: %w", err)
	}
	if err := enc.Encode(k.Args); err != nil {
		return "", fmt.Errorf("tabula: encode cache key: %w", err)
	}
	return k.Prefix() + uuid.NewSHA1(cacheNamespace, buf.Bytes()).String(), nil
}
