// Package history records sensor value changes into a local SQLite
// database, one row per change.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-agent/internal/warehouse"
	"github.com/nerrad567/gray-logic-agent/migrations"
)

// Settings is the record configuration.
//
//	- type: History
//	  path: ./data/history.db
//	  wal_mode: true
//	  retention: 720h
type Settings struct {
	config.DatabaseConfig `yaml:",inline"`

	// Retention deletes rows older than this on every loop. Zero keeps
	// everything.
	Retention time.Duration `yaml:"retention"`
}

// timeLayout keeps recorded_at fixed width so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotStarted is returned by Loop before Start has opened the database.
var ErrNotStarted = errors.New("history: database not open")

// Row is one recorded value.
type Row struct {
	DataID     string
	EntityID   string
	Key        string
	Client     string
	Value      string
	Numeric    *float64
	RecordedAt time.Time
}

// History is the SQLite history warehouse.
type History struct {
	settings Settings
	client   string
	entities warehouse.Source
	logger   warehouse.Logger
	tracker  *warehouse.Tracker
	now      func() time.Time

	db *database.DB
}

// New builds a History warehouse. The database is opened in Start.
func New(rec config.Record, env warehouse.Env) (warehouse.Handler, error) {
	s := Settings{DatabaseConfig: config.DatabaseConfig{Path: "./data/history.db", WALMode: true}}
	if err := rec.Decode(&s); err != nil {
		return nil, err
	}
	if s.Path == "" {
		return nil, fmt.Errorf("%s: %w", rec.Identity(), database.ErrNoPath)
	}
	if s.Retention < 0 {
		return nil, fmt.Errorf("%s: retention must not be negative", rec.Identity())
	}

	logger := env.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &History{
		settings: s,
		client:   env.ClientName,
		entities: env.Entities,
		logger:   logger,
		tracker:  warehouse.NewTracker(),
		now:      time.Now,
	}, nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Start opens the database and applies pending migrations.
func (h *History) Start(ctx context.Context) error {
	db, err := database.Open(ctx, h.settings.DatabaseConfig)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return err
	}
	h.db = db
	h.logger.Info("history database ready", "path", db.Path())
	return nil
}

// Stop closes the database.
func (h *History) Stop(context.Context) error {
	return h.db.Close()
}

// Loop inserts a row for every sensor whose value changed since the last
// loop, then prunes rows past the retention window.
func (h *History) Loop(ctx context.Context) error {
	if h.db == nil {
		return ErrNotStarted
	}

	changed := h.tracker.Changed(h.entities)
	if len(changed) > 0 {
		if err := h.insert(ctx, changed); err != nil {
			// Rows were not written; record them again next time.
			h.tracker.Forget()
			return err
		}
		h.logger.Debug("history rows recorded", "count", len(changed))
	}

	if h.settings.Retention > 0 {
		cutoff := h.now().Add(-h.settings.Retention).UTC().Format(timeLayout)
		if _, err := h.db.ExecContext(ctx, "DELETE FROM sensor_history WHERE recorded_at < ?", cutoff); err != nil {
			return fmt.Errorf("pruning history: %w", err)
		}
	}
	return nil
}

func (h *History) insert(ctx context.Context, sensors []*entity.Sensor) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sensor_history (data_id, entity_id, key, client, value, numeric, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing history insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range sensors {
		v, _ := s.Value()
		var numeric sql.NullFloat64
		if f, ok := warehouse.Numeric(v); ok {
			numeric = sql.NullFloat64{Float64: f, Valid: true}
		}
		at := s.UpdatedAt()
		if at.IsZero() {
			at = h.now()
		}
		if _, err := stmt.ExecContext(ctx,
			s.ID(), s.Entity().ID(), s.Key(), h.client,
			warehouse.FormatValue(v), numeric, at.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("recording %s: %w", s.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history: %w", err)
	}
	return nil
}

// Recent returns the latest rows recorded for a data ID, newest first.
// A limit of zero or less returns every row.
func (h *History) Recent(ctx context.Context, dataID string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT data_id, entity_id, key, client, value, numeric, recorded_at
		FROM sensor_history
		WHERE data_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, dataID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r       Row
			numeric sql.NullFloat64
			at      string
		)
		if err := rows.Scan(&r.DataID, &r.EntityID, &r.Key, &r.Client, &r.Value, &numeric, &at); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if numeric.Valid {
			v := numeric.Float64
			r.Numeric = &v
		}
		if r.RecordedAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parsing recorded_at %q: %w", at, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
