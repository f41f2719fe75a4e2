// Package accessory publishes bridge services over the HomeKit Accessory
// Protocol using github.com/brutella/hap.
//
// Each bridge accessory becomes one HAP accessory whose id is a hash of the
// accessory key, so ids survive restarts and re-resolution. Values flow
// both ways: bridge characteristic changes are pushed to HAP with a nil
// request, and HAP writes (non-nil request) are handed to the Handler.
// Reads go through the Handler so an unreachable device reports
// communication failure instead of a stale value.
package accessory
