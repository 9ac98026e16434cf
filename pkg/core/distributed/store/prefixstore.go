package store

import (
	"context"
	"strings"
)

// PrefixStore namespaces all keys of an underlying Store with "<prefix>/".
type PrefixStore struct {
	prefix string
	base   Store
}

var _ Store = (*PrefixStore)(nil)

// NewPrefixStore returns a Store whose keys are stored in base as "<prefix>/<key>".
func NewPrefixStore(prefix string, base Store) *PrefixStore {
	return &PrefixStore{prefix: strings.TrimSuffix(prefix, "/") + "/", base: base}
}

// Base returns the underlying store.
func (s *PrefixStore) Base() Store { return s.base }

func (s *PrefixStore) key(key string) string { return s.prefix + key }

// Set implements Store.
func (s *PrefixStore) Set(ctx context.Context, key string, value []byte) error {
	return s.base.Set(ctx, s.key(key), value)
}

// Get implements Store.
func (s *PrefixStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.base.Get(ctx, s.key(key))
}

// Add implements Store.
func (s *PrefixStore) Add(ctx context.Context, key string, delta int64) (int64, error) {
	return s.base.Add(ctx, s.key(key), delta)
}

// CompareSet implements Store.
func (s *PrefixStore) CompareSet(ctx context.Context, key string, expected, desired []byte) ([]byte, error) {
	return s.base.CompareSet(ctx, s.key(key), expected, desired)
}

// DeleteKey implements Store.
func (s *PrefixStore) DeleteKey(ctx context.Context, key string) (bool, error) {
	return s.base.DeleteKey(ctx, s.key(key))
}

// Check implements Store.
func (s *PrefixStore) Check(ctx context.Context, keys ...string) (bool, error) {
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.key(key)
	}
	return s.base.Check(ctx, prefixed...)
}

// NumKeys implements Store. It counts the keys of the underlying store, not only the prefixed ones.
func (s *PrefixStore) NumKeys(ctx context.Context) (int64, error) {
	return s.base.NumKeys(ctx)
}
