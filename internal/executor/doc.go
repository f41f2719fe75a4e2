// Package executor sends accessory writes to the controller.
//
// Writes update the characteristic optimistically and are translated by the
// set table into commands. Level and position changes are debounced per
// service so a slider drag results in a single command. Every other command
// is sent immediately inside a section that pauses the reconciliation loop,
// which keeps a stale fetch from overwriting the optimistic value.
package executor
