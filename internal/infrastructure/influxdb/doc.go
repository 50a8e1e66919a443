// Package influxdb writes Trackside telemetry to InfluxDB v2.
//
// Two measurements are produced:
//   - automation_runs: one point per script run (name, trigger, status, elapsed)
//   - layout_events: one point per entity update from the state feed
//
// Writes are non-blocking and batched (batch_size, flush_interval in
// config.yaml). Batch failures arrive asynchronously through SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//	client.WriteAutomationRun(influxdb.RunPoint{Name: "evening lights", ...})
package influxdb
