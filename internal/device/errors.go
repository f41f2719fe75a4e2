package device

import "errors"

// ErrInvalidDescriptor is returned when a controller device object lacks a
// usable id.
var ErrInvalidDescriptor = errors.New("device: invalid descriptor")
