// Package influxdb provides optional history telemetry for the Harmony
// microservice.
//
// When enabled, the bridge records activity transitions, power state
// changes, and command dispatches as time-series points. Writes are
// batched and non-blocking; a write failure never affects the bridge's
// core polling or dispatch paths.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    // influxdb.ErrDisabled when not configured
//	}
//	defer client.Close()
//
//	client.WriteActivityTransition("harmony-livingroom", "12345678", "Watch TV")
package influxdb
