package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by Trackside.
const (
	MeasurementAutomationRuns = "automation_runs"
	MeasurementLayoutEvents   = "layout_events"
)

// RunPoint describes one automation run outcome.
type RunPoint struct {
	Name        string
	TriggerType string // "time" or "event"
	Status      string // "success", "error", "timeout", "cancelled"
	Elapsed     time.Duration
	Late        bool
	StartedAt   time.Time
}

// WriteAutomationRun records one run outcome.
//
// Tags: name, trigger, status. Fields: elapsed_ms, late.
func (c *Client) WriteAutomationRun(run RunPoint) {
	ts := run.StartedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	c.WritePointWithTime(MeasurementAutomationRuns,
		map[string]string{
			"name":    run.Name,
			"trigger": run.TriggerType,
			"status":  run.Status,
		},
		map[string]any{
			"elapsed_ms": run.Elapsed.Milliseconds(),
			"late":       run.Late,
		},
		ts,
	)
}

// WriteLayoutEvent records that an entity changed on the layout.
//
// Tags: kind, id. Fields: version, attributes.
func (c *Client) WriteLayoutEvent(kind, id string, version uint64, attributes int, at time.Time) {
	c.WritePointWithTime(MeasurementLayoutEvents,
		map[string]string{
			"kind": kind,
			"id":   id,
		},
		map[string]any{
			"version":    int64(version), //nolint:gosec // versions stay far below MaxInt64
			"attributes": attributes,
		},
		at,
	)
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
// Silently dropped while disconnected.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() || c.writer == nil {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
