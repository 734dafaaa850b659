// Package rest serves the active entities over HTTP and streams value
// changes to WebSocket clients.
//
// Routes:
//
//	GET  /api/v1/health
//	GET  /api/v1/entities
//	GET  /api/v1/entities/{id}
//	POST /api/v1/entities/{id}/commands/{key}
//	GET  /api/v1/ws
//
// Each loop pushes a sensor.value_changed event per changed sensor to the
// WebSocket clients. A client limits the feed to some entities with
// repeated ?entity=<id> query values, e.g. /api/v1/ws?entity=Uptime.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/warehouse"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ChannelValueChanged carries one event per changed sensor value.
const ChannelValueChanged = "sensor.value_changed"

// Settings is the record configuration.
//
//	- type: REST
//	  host: 127.0.0.1
//	  port: 8080
//	  token: s3cret
//	  websocket: {ping_interval: 30}
type Settings struct {
	config.APIConfig `yaml:",inline"`

	// Token, when set, is required as "Authorization: Bearer <token>" on
	// every route except health. WebSocket clients may pass it as ?token=.
	// GLAGENT_REST_TOKEN replaces it when set.
	Token string `yaml:"token"`

	WebSocket config.WebSocketConfig `yaml:"websocket"`
}

func defaultSettings() Settings {
	return Settings{
		APIConfig: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     8080,
			Timeouts: config.APITimeoutConfig{Read: 10, Write: 10, Idle: 60},
		},
		WebSocket: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
	}
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("GLAGENT_REST_TOKEN"); v != "" {
		s.Token = v
	}
}

// Validate checks listener and WebSocket settings.
func (s Settings) Validate() error {
	var errs []error
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, errors.New("port must be between 0 and 65535"))
	}
	if s.TLS.Enabled && (s.TLS.CertFile == "" || s.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls requires cert_file and key_file"))
	}
	if s.WebSocket.PingInterval <= 0 || s.WebSocket.PongTimeout <= 0 {
		errs = append(errs, errors.New("websocket ping_interval and pong_timeout must be positive"))
	}
	if s.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("websocket max_message_size must be positive"))
	}
	return errors.Join(errs...)
}

// REST is the HTTP status warehouse.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type REST struct {
	settings Settings
	version  string
	client   string
	entities warehouse.Source
	logger   warehouse.Logger
	tracker  *warehouse.Tracker
	feed     *Feed
	router   http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New builds a REST warehouse. The listener is opened in Start.
func New(rec config.Record, env warehouse.Env) (warehouse.Handler, error) {
	s := defaultSettings()
	if err := rec.Decode(&s); err != nil {
		return nil, err
	}
	applyEnvOverrides(&s)
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Identity(), err)
	}
	return newREST(s, env), nil
}

func newREST(s Settings, env warehouse.Env) *REST {
	logger := env.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	r := &REST{
		settings: s,
		version:  env.Version,
		client:   env.ClientName,
		entities: env.Entities,
		logger:   logger,
		tracker:  warehouse.NewTracker(),
		feed:     NewFeed(s.WebSocket, logger),
	}
	r.router = r.buildRouter()
	return r
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handler returns the routed HTTP handler.
func (r *REST) Handler() http.Handler { return r.router }

// Start opens the listener and serves in the background. Port 0 picks a
// free port; Addr reports it.
func (r *REST) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.server != nil {
		return errors.New("rest: already started")
	}

	var srvCtx context.Context
	srvCtx, r.cancel = context.WithCancel(ctx)
	go r.feed.Run(srvCtx)

	addr := net.JoinHostPort(r.settings.Host, fmt.Sprint(r.settings.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		r.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	r.listener = ln

	r.server = &http.Server{
		Handler:           r.router,
		ReadTimeout:       time.Duration(r.settings.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(r.settings.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(r.settings.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(r.settings.Timeouts.Idle) * time.Second,
	}

	srv := r.server
	go func() {
		var err error
		if r.settings.TLS.Enabled {
			r.logger.Info("REST server starting with TLS",
				"address", ln.Addr().String(),
				"cert", r.settings.TLS.CertFile,
			)
			err = srv.ServeTLS(ln, r.settings.TLS.CertFile, r.settings.TLS.KeyFile)
		} else {
			r.logger.Info("REST server starting", "address", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("REST server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the listening address, or "" before Start.
func (r *REST) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Stop disconnects WebSocket clients and shuts the server down, waiting for
// in-flight requests up to gracefulShutdownTimeout.
func (r *REST) Stop(context.Context) error {
	r.mu.Lock()
	srv, cancel := r.server, r.cancel
	r.server = nil
	r.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	r.logger.Info("REST server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down REST server: %w", err)
	}
	return nil
}

// Loop pushes a value_changed event for every sensor whose value or
// attributes moved since the last loop.
func (r *REST) Loop(context.Context) error {
	for _, s := range r.tracker.Changed(r.entities) {
		r.feed.Publish(ChannelValueChanged, s.Entity().ID(), newSensorView(s))
	}
	return nil
}
