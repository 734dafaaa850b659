package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/influxdb"
)

// fakeInflux answers the two endpoints the client uses: /ping and
// /api/v2/write. Written line protocol is collected for inspection.
type fakeInflux struct {
	mu          sync.Mutex
	lines       []string
	pingStatus  int
	writeStatus int
}

func newFakeInflux(t *testing.T) (*fakeInflux, *httptest.Server) {
	t.Helper()
	f := &fakeInflux{pingStatus: http.StatusNoContent, writeStatus: http.StatusNoContent}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(f.pingStatus)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		if f.writeStatus == http.StatusNoContent {
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
		}
		if f.writeStatus >= http.StatusBadRequest {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.writeStatus)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"rejected"}`))
			return
		}
		w.WriteHeader(f.writeStatus)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		URL:           url,
		Token:         "test-token",
		Org:           "graylogic",
		Bucket:        "agent",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.InfluxDBConfig)
		wantErr bool
	}{
		{"valid", func(*config.InfluxDBConfig) {}, false},
		{"no url", func(c *config.InfluxDBConfig) { c.URL = "" }, true},
		{"no org", func(c *config.InfluxDBConfig) { c.Org = "" }, true},
		{"no bucket", func(c *config.InfluxDBConfig) { c.Bucket = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://127.0.0.1:8086")
			tt.mutate(&cfg)
			err := influxdb.Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, influxdb.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConnect(t *testing.T) {
	_, srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	_, srv := newFakeInflux(t)
	cfg := testConfig(srv.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
}

func TestConnect_InvalidConfig(t *testing.T) {
	_, err := influxdb.Connect(context.Background(), config.InfluxDBConfig{})
	if !errors.Is(err, influxdb.ErrInvalidConfig) {
		t.Errorf("Connect() error = %v, want ErrInvalidConfig", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(context.Background(), testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f, srv := newFakeInflux(t)
	f.pingStatus = http.StatusServiceUnavailable

	_, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteSensorValue(t *testing.T) {
	f, srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteSensorValue(influxdb.SensorSample{
		EntityID: "Runtime",
		Key:      "goroutines",
		Client:   "bench",
		Value:    12,
		At:       time.Unix(1767225600, 0),
	})
	client.Flush()

	if !waitFor(t, func() bool { return len(f.received()) == 1 }) {
		t.Fatalf("received %d lines, want 1", len(f.received()))
	}

	line := f.received()[0]
	for _, want := range []string{"sensor_values,", "client=bench", "entity=Runtime", "key=goroutines", "value=12", "1767225600000000000"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWritePoint(t *testing.T) {
	f, srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WritePoint("agent_stats", map[string]string{"host": "bench"}, map[string]any{"loops": 3})
	client.Flush()

	if !waitFor(t, func() bool { return len(f.received()) == 1 }) {
		t.Fatalf("received %d lines, want 1", len(f.received()))
	}
	if line := f.received()[0]; !strings.HasPrefix(line, "agent_stats,host=bench loops=3i") {
		t.Errorf("line = %q", line)
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	f, srv := newFakeInflux(t)
	f.writeStatus = http.StatusBadRequest

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var mu sync.Mutex
	var got error
	client.SetOnError(func(err error) {
		mu.Lock()
		got = err
		mu.Unlock()
	})

	client.WritePoint("agent_stats", nil, map[string]any{"loops": 1})
	client.Flush()

	ok := waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	})
	if !ok {
		t.Fatal("error callback not invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(got, influxdb.ErrWriteFailed) {
		t.Errorf("callback error = %v, want ErrWriteFailed", got)
	}
}

func TestClose(t *testing.T) {
	_, srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}

	// Writes and flushes after Close are no-ops, and Close is idempotent.
	client.WritePoint("agent_stats", nil, map[string]any{"loops": 1})
	client.Flush()
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
