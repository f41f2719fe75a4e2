// Package homekit models accessory-protocol services and characteristics
// independently of any runtime.
//
// A Service is identified by a SubtypeKey, rendered as
// "{deviceId}-{sub}-{role}-{variant}-". Characteristics carry a value guarded
// by a mutex and notify listeners on change; the accessory runtime adapter and
// the state mirror are both listeners.
package homekit
