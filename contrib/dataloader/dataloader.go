// Package dataloader matches the rows of a batched statement back to the
// keys that requested them.
//
// A batched read selects the rows of many keys with one IN predicate. The
// rows come back in storage order, possibly with gaps; the helpers below
// restore the order of the request:
//
//	rows, _ := runBatch(ctx, dataloader.Unique(ids, keyOf))
//	ordered, errs := dataloader.OrderByKeys(ids, rows, func(r Row) int { return r.ID })
//
// For one-to-many lookups the rows are grouped by their parent key first:
//
//	grouped := dataloader.GroupByKey(children, func(c Row) int { return c.ParentID })
//	perParent := dataloader.OrderGroupsByKeys(parentIDs, grouped)
package dataloader

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no row in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// BatchFunc loads the entities of a batch of keys, returning one value and
// one error per key in key order.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, []error)

// OrderByKeys reorders entities to match the order of requested keys.
// Missing entities are represented as zero values with ErrNotFound.
//
// The result always has the length of keys, and duplicate keys share
// the same entity.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// GroupByKey groups entities by a key function, keeping their order within
// each group. Use it when many entities share the same parent key.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys reorders grouped entities to match the order of
// requested keys. Keys without a group get a nil slice.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// Unique returns the values with duplicate keys removed, keeping the first
// occurrence of each key.
func Unique[K comparable, V any](values []V, keyFn KeyFunc[K, V]) []V {
	seen := make(map[K]struct{}, len(values))
	result := make([]V, 0, len(values))
	for _, v := range values {
		k := keyFn(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, v)
	}
	return result
}

// Load deduplicates keys, loads them with fn and fans the results back out
// to every requested key, in order.
func Load[K comparable, V any](ctx context.Context, keys []K, fn BatchFunc[K, V]) ([]V, []error) {
	uniq := Unique(keys, func(k K) K { return k })
	values, errs := fn(ctx, uniq)
	type result struct {
		value V
		err   error
	}
	byKey := make(map[K]result, len(uniq))
	for i, k := range uniq {
		var r result
		if i < len(values) {
			r.value = values[i]
		}
		if i < len(errs) {
			r.err = errs[i]
		}
		byKey[k] = r
	}
	out := make([]V, len(keys))
	outErrs := make([]error, len(keys))
	for i, k := range keys {
		r := byKey[k]
		out[i], outErrs[i] = r.value, r.err
	}
	return out, outErrs
}
