// Package store implements the rendezvous key-value stores the ranks of a process group use to agree on
// shared values, e.g. sequence numbers.
//
// All implementations are strongly consistent: a value Set by one rank is visible to every other rank's Get.
//
//   - HashStore: in-memory, shared by ranks living in the same process.
//   - PrefixStore: namespaces the keys of another Store, typically one namespace per group.
//   - RedisStore: backed by a Redis server, shared by ranks in different processes.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Store is the key-value store interface used by the process groups.
type Store interface {
	// Set the value of key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Get the value of key, waiting until the key is set, the store's timeout elapses or the context is done.
	Get(ctx context.Context, key string) ([]byte, error)

	// Add delta to the integer value of key (a missing key counts as 0), and returns the new value.
	Add(ctx context.Context, key string, delta int64) (int64, error)

	// CompareSet sets key to desired if its current value is expected, where a missing key matches an empty
	// expected value. It returns the value of the key after the operation: desired if it was set, the current
	// value otherwise (or expected if the key is missing).
	CompareSet(ctx context.Context, key string, expected, desired []byte) ([]byte, error)

	// DeleteKey removes key, and returns whether it existed.
	DeleteKey(ctx context.Context, key string) (bool, error)

	// Check returns whether all keys are set, without waiting.
	Check(ctx context.Context, keys ...string) (bool, error)

	// NumKeys returns the number of keys in the store.
	NumKeys(ctx context.Context) (int64, error)
}

// DefaultTimeout of Store.Get operations when the store is created without an explicit timeout.
const DefaultTimeout = 5 * time.Minute

// ErrTimeout is returned by Get when the key is not set within the store's timeout.
var ErrTimeout = errors.New("store timeout waiting for key")

// withTimeout returns a context bounded by timeout, if timeout > 0.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// waitError converts the error of a context used to wait for key.
func waitError(ctx context.Context, key string, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrapf(ErrTimeout, "key %q not set within %s", key, timeout)
	}
	return errors.Wrapf(ctx.Err(), "waiting for key %q", key)
}
