package executor

import "errors"

var (
	// ErrMissingDependency is returned by New when a required option is nil.
	ErrMissingDependency = errors.New("executor: missing dependency")

	// ErrClosed is returned by HandleWrite after Close.
	ErrClosed = errors.New("executor: closed")
)
