package distributed

import (
	"github.com/pkg/errors"
)

// Errors returned by the process groups and backends. Match them with errors.Is: the returned errors
// wrap these sentinels with the details of the failure.
var (
	// ErrBackendNotFound is returned when no backend is registered for a device type or backend kind.
	ErrBackendNotFound = errors.New("backend not found")

	// ErrConfiguration is returned on misconfigured groups, e.g. when the default backend was never
	// registered.
	ErrConfiguration = errors.New("process group misconfigured")

	// ErrInvariantViolation is returned when a registration would break the group's consistency,
	// e.g. aliasing a backend with a different bound device.
	// It is also an ErrConfiguration.
	ErrInvariantViolation = errors.Wrap(ErrConfiguration, "invariant violation")

	// ErrUnsupportedOperation is returned when the operation is not supported by the backend kind.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidArgument is returned for invalid arguments, detected before any asynchronous work starts.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTimedOut is the failure of a Work that exceeded its deadline.
	ErrTimedOut = errors.New("timed out")

	// ErrTransportFailure wraps a low-level transport error, reported through a failed Work.
	ErrTransportFailure = errors.New("transport failure")

	// ErrCollectiveDesync is returned when ranks disagree on their collective sequence numbers.
	ErrCollectiveDesync = errors.New("collective desynchronization")

	// ErrBackendShutdown is the failure of Works issued on, or pending at, a backend that was shut down.
	ErrBackendShutdown = errors.New("backend shut down")
)
