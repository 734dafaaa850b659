// Package influxdb writes numeric sensor values to InfluxDB v2 as points of
// the sensor_values measurement.
package influxdb

import (
	"context"
	"os"

	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	influx "github.com/nerrad567/gray-logic-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-agent/internal/warehouse"
)

// Settings is the record configuration. GLAGENT_INFLUXDB_TOKEN replaces
// the token when set.
//
//	- type: InfluxDB
//	  url: http://localhost:8086
//	  org: home
//	  bucket: agent
type Settings struct {
	config.InfluxDBConfig `yaml:",inline"`
}

// InfluxDB is the time-series warehouse. Only samples taken since the
// previous loop are written; values that are not numeric are skipped.
type InfluxDB struct {
	settings Settings
	client   string
	entities warehouse.Source
	logger   warehouse.Logger
	tracker  *warehouse.Tracker

	conn *influx.Client
}

// New builds an InfluxDB warehouse. The connection is made in Start.
func New(rec config.Record, env warehouse.Env) (warehouse.Handler, error) {
	var s Settings
	if err := rec.Decode(&s); err != nil {
		return nil, err
	}
	if v := os.Getenv("GLAGENT_INFLUXDB_TOKEN"); v != "" {
		s.Token = v
	}
	if err := influx.Validate(s.InfluxDBConfig); err != nil {
		return nil, err
	}

	logger := env.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &InfluxDB{
		settings: s,
		client:   env.ClientName,
		entities: env.Entities,
		logger:   logger,
		tracker:  warehouse.NewTracker(),
	}, nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Start connects and pings the server.
func (w *InfluxDB) Start(ctx context.Context) error {
	conn, err := influx.Connect(ctx, w.settings.InfluxDBConfig)
	if err != nil {
		return err
	}
	conn.SetOnError(func(err error) {
		w.logger.Warn("influxdb write failed", "url", w.settings.URL, "error", err)
	})
	w.conn = conn
	w.logger.Info("influxdb connected", "url", w.settings.URL, "bucket", w.settings.Bucket)
	return nil
}

// Stop flushes pending points and closes the connection.
func (w *InfluxDB) Stop(context.Context) error {
	return w.conn.Close()
}

// Loop queues a point per fresh numeric sample. Writes are batched by the
// client; failures surface through the error callback.
func (w *InfluxDB) Loop(context.Context) error {
	if w.conn == nil || !w.conn.IsConnected() {
		return influx.ErrNotConnected
	}

	written := 0
	for _, s := range w.tracker.Fresh(w.entities) {
		v, _ := s.Value()
		f, ok := warehouse.Numeric(v)
		if !ok {
			continue
		}
		w.conn.WriteSensorValue(influx.SensorSample{
			EntityID: s.Entity().ID(),
			Key:      s.Key(),
			Client:   w.client,
			Value:    f,
			At:       s.UpdatedAt(),
		})
		written++
	}
	if written > 0 {
		w.logger.Debug("influxdb points queued", "count", written)
	}
	return nil
}
