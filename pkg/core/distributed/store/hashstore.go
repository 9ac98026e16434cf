package store

import (
	"bytes"
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// HashStore is an in-memory Store, safe for concurrent use.
type HashStore struct {
	timeout time.Duration

	mu   sync.Mutex
	data map[string][]byte

	// changed is closed (and replaced) every time a key is set.
	changed chan struct{}
}

var _ Store = (*HashStore)(nil)

// NewHashStore creates an empty HashStore. Get waits at most timeout for a key (DefaultTimeout if 0).
func NewHashStore(timeout time.Duration) *HashStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HashStore{
		timeout: timeout,
		data:    make(map[string][]byte),
		changed: make(chan struct{}),
	}
}

// lockedNotify wakes up all waiters. It must be called with mu held.
func (s *HashStore) lockedNotify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Set implements Store.
func (s *HashStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = slices.Clone(value)
	s.lockedNotify()
	return nil
}

// Get implements Store.
func (s *HashStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	for {
		s.mu.Lock()
		value, found := s.data[key]
		changed := s.changed
		s.mu.Unlock()
		if found {
			return slices.Clone(value), nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, waitError(ctx, key, s.timeout)
		}
	}
}

// Add implements Store.
func (s *HashStore) Add(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if value, found := s.data[key]; found {
		var err error
		current, err = strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "HashStore.Add(%q): current value is not an integer", key)
		}
	}
	current += delta
	s.data[key] = []byte(strconv.FormatInt(current, 10))
	s.lockedNotify()
	return current, nil
}

// CompareSet implements Store.
func (s *HashStore) CompareSet(_ context.Context, key string, expected, desired []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, found := s.data[key]
	if !found {
		if len(expected) == 0 {
			s.data[key] = slices.Clone(desired)
			s.lockedNotify()
			return slices.Clone(desired), nil
		}
		return slices.Clone(expected), nil
	}
	if bytes.Equal(current, expected) {
		s.data[key] = slices.Clone(desired)
		s.lockedNotify()
		return slices.Clone(desired), nil
	}
	return slices.Clone(current), nil
}

// DeleteKey implements Store.
func (s *HashStore) DeleteKey(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.data[key]
	delete(s.data, key)
	return found, nil
}

// Check implements Store.
func (s *HashStore) Check(_ context.Context, keys ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if _, found := s.data[key]; !found {
			return false, nil
		}
	}
	return true, nil
}

// NumKeys implements Store.
func (s *HashStore) NumKeys(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.data)), nil
}
