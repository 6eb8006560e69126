package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteActivityTransition records an activity change observed on a hub.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteActivityTransition("harmony-livingroom", "12345678", "Watch TV")
func (c *Client) WriteActivityTransition(hubID, activityID, activityLabel string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"activity_transitions",
		map[string]string{
			"hub_id":      hubID,
			"activity_id": activityID,
		},
		map[string]interface{}{
			"label": activityLabel,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePowerState records the hub's power state on change.
//
// off is true when no activity is running (the hub's power-off
// pseudo-activity is current).
func (c *Client) WritePowerState(hubID string, off bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"power_state",
		map[string]string{
			"hub_id": hubID,
		},
		map[string]interface{}{
			"off": off,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandDispatch records a command issued through the bridge.
//
// Used for usage analytics over which commands clients actually send.
func (c *Client) WriteCommandDispatch(hubID, deviceID, command string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"command_dispatch",
		map[string]string{
			"hub_id":    hubID,
			"device_id": deviceID,
		},
		map[string]interface{}{
			"command": command,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
