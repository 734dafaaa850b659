package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementSensorValues is the measurement sensor samples are written to.
const MeasurementSensorValues = "sensor_values"

// SensorSample is one numeric sensor reading.
type SensorSample struct {
	EntityID string
	Key      string
	Client   string
	Value    float64
	At       time.Time
}

// WriteSensorValue writes a sensor reading to the sensor_values measurement,
// tagged by entity, key and client.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteSensorValue(influxdb.SensorSample{
//	    EntityID: "Runtime", Key: "heap_alloc", Client: "bench",
//	    Value: 4.2e6, At: time.Now(),
//	})
func (c *Client) WriteSensorValue(s SensorSample) {
	at := s.At
	if at.IsZero() {
		at = time.Now()
	}
	c.WritePointWithTime(
		MeasurementSensorValues,
		map[string]string{
			"entity": s.EntityID,
			"key":    s.Key,
			"client": s.Client,
		},
		map[string]any{"value": s.Value},
		at,
	)
}

// WritePoint writes a custom point stamped now.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
