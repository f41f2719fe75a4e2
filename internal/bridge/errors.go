package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrDeviceUnreachable is returned for reads and writes of a device the
	// controller reports as dead when the dead-device policy is "fail".
	ErrDeviceUnreachable = errors.New("bridge: device unreachable")

	// ErrNotResolved is returned by Bind before ResolveCapabilities succeeded.
	ErrNotResolved = errors.New("bridge: capabilities not resolved")

	// ErrUnknownService is returned when a handler receives a service the
	// bridge did not create.
	ErrUnknownService = errors.New("bridge: unknown service")
)
