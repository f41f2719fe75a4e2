package transform

import "errors"

var (
	// ErrNotWritable is returned for characteristics with no set-direction entry.
	ErrNotWritable = errors.New("transform: characteristic not writable")

	// ErrNoCommand is returned when a write needs no controller command,
	// such as releasing a momentary switch.
	ErrNoCommand = errors.New("transform: no command for value")

	// ErrInvalidValue is returned when a requested value cannot be converted.
	ErrInvalidValue = errors.New("transform: invalid value")
)
