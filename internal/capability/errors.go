package capability

import "errors"

// ErrNotSupported is returned when no override or rule produces a capability
// for a device. Callers skip the device.
var ErrNotSupported = errors.New("capability: device not supported")
