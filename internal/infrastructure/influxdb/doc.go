// Package influxdb provides InfluxDB v2 connectivity for sensor time series.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "graylogic",
//	    Bucket: "agent",
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensorValue(influxdb.SensorSample{EntityID: "Uptime", Key: "uptime", Client: "bench", Value: 42})
//
// # Error Handling
//
// Writes are non-blocking; batch errors are delivered to the SetOnError
// callback wrapped in ErrWriteFailed. Connection and health check errors are
// returned directly.
package influxdb
