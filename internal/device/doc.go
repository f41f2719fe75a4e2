// Package device models controller devices as immutable snapshots.
//
// A Descriptor is decoded from the controller's device JSON. Its typed
// Properties are the subset capability resolution needs; Raw keeps every
// property the controller sent so transforms can read the rest. The
// controller reports most scalars as strings, so decoding coerces "55",
// "true" and "2" into their numeric and boolean forms.
//
// Cache holds the latest snapshot per device id. The reconciliation loop
// applies property deltas to it and the diagnostics API reads from it.
package device
