// Package transform converts between controller property values and
// characteristic values.
//
// GetTable is the get direction: it reads a device's raw properties and
// writes the normalized value into a characteristic, leaving the prior value
// in place when the input is missing or malformed. SetTable is the set
// direction: it turns a requested characteristic value into a Command that
// also carries its dispatch policy (immediate, debounced, momentary or
// colour accumulation).
package transform
