// Package mirror copies bridge activity to the outside world.
//
// Every characteristic change, executor record and poll cycle is fanned out
// to whichever sinks are configured: retained MQTT state topics, InfluxDB
// telemetry, the SQLite history and the diagnostics websocket stream.
// Listeners run on the goroutine that changed the value, so sink I/O is
// moved onto a single worker through a bounded queue. When the queue is
// full new work is dropped and counted.
//
// With both an MQTT publisher and a Writer configured, values published to
// the set topics are forwarded to the bridge as HomeKit-style writes.
package mirror
