// Package capability derives accessory capabilities from controller devices.
//
// Resolution order is: manual override by device id, the configured doorbell,
// then the ordered rule table returned by DefaultRules (first match wins).
// Rules branch on runtime properties such as deviceControlType, deviceRole
// and favoritePositionsNativeSupport, and may expand one device into several
// services (remote buttons, virtual-device buttons).
//
// Unsupported devices yield an error wrapping ErrNotSupported. This includes
// multilevel sensors with an unrecognised role, which are logged at debug
// level and skipped.
package capability
