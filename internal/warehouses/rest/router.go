package rest

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (r *REST) buildRouter() http.Handler {
	router := chi.NewRouter()

	router.Use(r.requestIDMiddleware)
	router.Use(r.loggingMiddleware)
	router.Use(r.recoveryMiddleware)
	router.Use(r.corsMiddleware)
	router.Use(r.bodySizeLimitMiddleware)

	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})
	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such route")
	})

	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/health", r.handleHealth)

		api.Group(func(api chi.Router) {
			api.Use(r.authMiddleware)

			api.Route("/entities", func(api chi.Router) {
				api.Get("/", r.handleListEntities)
				api.Route("/{id}", func(api chi.Router) {
					api.Get("/", r.handleGetEntity)
					api.Post("/commands/{key}", r.handleInvokeCommand)
				})
			})

			api.Get(r.settings.WebSocket.Path, r.handleWebSocket)
		})
	})

	return router
}

// sensorView is the JSON form of a sensor.
type sensorView struct {
	ID         string         `json:"id"`
	Key        string         `json:"key"`
	Value      any            `json:"value"`
	HasValue   bool           `json:"has_value"`
	Unit       string         `json:"unit,omitempty"`
	Precision  *int           `json:"precision,omitempty"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func newSensorView(s *entity.Sensor) sensorView {
	v, ok := s.Value()
	view := sensorView{
		ID:         s.ID(),
		Key:        s.Key(),
		Value:      v,
		HasValue:   ok,
		Unit:       s.Unit(),
		Attributes: s.ExtraAttributes(),
	}
	if p, ok := s.Precision(); ok {
		view.Precision = &p
	}
	if at := s.UpdatedAt(); !at.IsZero() {
		view.UpdatedAt = &at
	}
	return view
}

// commandView is the JSON form of a command.
type commandView struct {
	ID        string   `json:"id"`
	Key       string   `json:"key"`
	Stateful  bool     `json:"stateful"`
	Connected []string `json:"connected,omitempty"`
}

func newCommandView(c *entity.Command) commandView {
	view := commandView{ID: c.ID(), Key: c.Key(), Stateful: c.Stateful()}
	for _, s := range c.Connected() {
		view.Connected = append(view.Connected, s.ID())
	}
	return view
}

// entityView is the JSON form of an entity.
type entityView struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Tag         string        `json:"tag,omitempty"`
	DisplayName string        `json:"display_name"`
	State       string        `json:"state"`
	Sensors     []sensorView  `json:"sensors"`
	Commands    []commandView `json:"commands"`
}

func newEntityView(e *entity.Entity) entityView {
	view := entityView{
		ID:          e.ID(),
		Type:        e.Type(),
		Tag:         e.Tag(),
		DisplayName: e.DisplayName(),
		State:       e.State().String(),
		Sensors:     []sensorView{},
		Commands:    []commandView{},
	}
	for _, s := range e.Sensors() {
		view.Sensors = append(view.Sensors, newSensorView(s))
	}
	for _, c := range e.Commands() {
		view.Commands = append(view.Commands, newCommandView(c))
	}
	return view
}

func (r *REST) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    r.version,
		"client":     r.client,
		"entities":   len(r.entities.Active()),
		"ws_clients": r.feed.ClientCount(),
	})
}

func (r *REST) handleListEntities(w http.ResponseWriter, _ *http.Request) {
	active := r.entities.Active()
	views := make([]entityView, 0, len(active))
	for _, e := range active {
		views = append(views, newEntityView(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": views,
		"count":    len(views),
	})
}

func (r *REST) handleGetEntity(w http.ResponseWriter, req *http.Request) {
	e, ok := r.findEntity(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newEntityView(e))
}

// handleInvokeCommand passes the raw request body to the command and
// returns the connected sensors as they are afterwards.
func (r *REST) handleInvokeCommand(w http.ResponseWriter, req *http.Request) {
	e, ok := r.findEntity(w, req)
	if !ok {
		return
	}

	key := chi.URLParam(req, "key")
	cmd, err := e.Command(key)
	if err != nil {
		writeNotFound(w, "command not found: "+key)
		return
	}

	payload, err := io.ReadAll(req.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "reading payload failed")
		return
	}

	if err := cmd.Invoke(req.Context(), payload); err != nil {
		r.logger.Warn("command failed", "command", cmd.ID(), "error", err)
		writeError(w, http.StatusUnprocessableEntity, ErrCodeCommandFailed, err.Error())
		return
	}

	connected := make([]sensorView, 0, len(cmd.Connected()))
	for _, s := range cmd.Connected() {
		connected = append(connected, newSensorView(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"command":   cmd.ID(),
		"connected": connected,
	})
}

// findEntity resolves the {id} path parameter against the active set,
// writing a 404 when it is unknown.
func (r *REST) findEntity(w http.ResponseWriter, req *http.Request) (*entity.Entity, bool) {
	id, err := url.PathUnescape(chi.URLParam(req, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid entity id")
		return nil, false
	}
	for _, e := range r.entities.Active() {
		if e.ID() == id {
			return e, true
		}
	}
	writeNotFound(w, "entity not found: "+id)
	return nil, false
}
