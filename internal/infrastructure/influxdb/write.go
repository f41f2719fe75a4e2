package influxdb

import (
	"maps"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCharacteristic = "characteristic"
	MeasurementCycle          = "poll_cycle"
	MeasurementCommand        = "command"
)

// WriteCharacteristic records a numeric characteristic value. remote marks
// values written by a HomeKit client.
func (c *Client) WriteCharacteristic(subtype, service, characteristic string, value float64, remote bool, at time.Time) {
	source := "controller"
	if remote {
		source = "homekit"
	}
	c.write(MeasurementCharacteristic, map[string]string{
		"subtype":        subtype,
		"service":        service,
		"characteristic": characteristic,
		"source":         source,
	}, map[string]any{"value": value}, at)
}

// WriteCycle records one reconciliation loop iteration.
func (c *Client) WriteCycle(changes, events int, failed bool, duration time.Duration, at time.Time) {
	c.write(MeasurementCycle, nil, map[string]any{
		"changes":     changes,
		"events":      events,
		"failed":      failed,
		"duration_ms": duration.Milliseconds(),
	}, at)
}

// WriteCommand records one controller command.
func (c *Client) WriteCommand(command, target string, failed bool, duration time.Duration, at time.Time) {
	c.write(MeasurementCommand, map[string]string{
		"command": command,
		"target":  target,
	}, map[string]any{
		"failed":      failed,
		"duration_ms": duration.Milliseconds(),
	}, at)
}

func (c *Client) write(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	all := maps.Clone(c.tags)
	maps.Copy(all, tags)
	c.writeAPI.WritePoint(write.NewPoint(measurement, all, fields, at))
}
