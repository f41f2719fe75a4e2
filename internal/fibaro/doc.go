// Package fibaro is the HTTP transport to a Home Center controller.
//
// It covers the incremental state poll (refreshStates), device actions,
// scenes, global variables and heating/climate panels. A 400 response to a
// state poll means the cursor is no longer valid and is reported as
// ErrStaleCursor; other non-2xx responses wrap ErrRequestFailed. The client
// carries no retry policy of its own.
package fibaro
