// Package poller implements the reconciliation loop that pulls incremental
// state from the controller and applies it to subscribed characteristics.
//
// The loop moves Idle → Fetching → Applying → Idle, or into Backoff after a
// failed fetch. A rejected cursor resets it to zero. Writers call Pause and
// Resume around controller commands: a pause cancels the scheduled fetch and
// causes an in-flight fetch's result to be dropped, and the final Resume
// re-arms the loop after a grace delay.
//
// After each applied delta batch the loop re-reads pseudo devices (global
// variables, the alarm variable and panel zones) with bounded concurrency.
package poller
