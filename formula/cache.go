package formula

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of parsed formulas kept by NewCache(0).
const DefaultCacheSize = 1024

// Cache is a bounded cache of parsed formulas keyed by their text. Parsed
// trees are never mutated, so they are shared by all compiles.
type Cache struct {
	lru *lru.Cache[string, Node]
}

// NewCache returns a cache of the given size.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, Node](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Parse parses text, or returns the tree of an earlier parse. Failed
// parses are not cached.
func (c *Cache) Parse(text string) (Node, error) {
	if n, ok := c.lru.Get(text); ok {
		return n, nil
	}
	n, err := Parse(text)
	if err != nil {
		return nil, err
	}
	c.lru.Add(text, n)
	return n, nil
}

// Len returns the number of cached formulas.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops all cached formulas.
func (c *Cache) Purge() { c.lru.Purge() }
