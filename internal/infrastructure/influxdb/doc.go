// Package influxdb writes bridge telemetry to InfluxDB v2.
//
// Points are batched by the client library and flushed on an interval, so
// writes never block the caller. Three measurements are written:
// characteristic (numeric values per service), poll_cycle (loop timing) and
// command (executor latency and failures).
package influxdb
