// Package cache provides tabula.Cache implementations for the rows of
// remote fetches.
//
//	e, err := engine.New(reg, engine.WithRemoteCache(cache.NewRedis(rdb)))
package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/syssam/tabula"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process LRU cache.
type Memory struct {
	lru *lru.Cache[string, entry]
	now func() time.Time
}

var _ tabula.Cache = (*Memory)(nil)

// NewMemory returns a cache holding up to size values.
func NewMemory(size int) (*Memory, error) {
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Memory{lru: c, now: time.Now}, nil
}

// Get returns the value of key, or nil if it is missing or expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.lru.Remove(key)
		return nil, nil
	}
	return e.value, nil
}

// Set stores the value of key.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.lru.Add(key, e)
	return nil
}

// DeletePrefix removes the values whose key starts with prefix.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	for _, k := range m.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			m.lru.Remove(k)
		}
	}
	return nil
}

// Len returns the number of cached values, expired ones included.
func (m *Memory) Len() int { return m.lru.Len() }
