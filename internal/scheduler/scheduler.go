package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
)

// Logger interface for optional logging support.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Scheduler drives entity lifecycles: one initialize each, then one polling
// goroutine per surviving entity.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Entities may be added only before Start.
type Scheduler struct {
	mu       sync.RWMutex
	entities []*entity.Entity
	byID     map[string]*entity.Entity
	active   []*entity.Entity
	started  bool

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// New creates an empty scheduler. A nil logger discards output.
func New(logger Logger) *Scheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		byID:   make(map[string]*entity.Entity),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Add registers an entity.
//
// Returns:
//   - error: ErrDuplicateIdentity when an entity with the same type and tag
//     exists, ErrDependencyCycle when e's dependencies lead back to e,
//     ErrAlreadyStarted after Start
func (s *Scheduler) Add(e *entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("%w: cannot add %s", ErrAlreadyStarted, e.ID())
	}
	if _, exists := s.byID[e.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, e.ID())
	}
	if path := s.cycleLocked(e); path != nil {
		return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(path, " -> "))
	}

	s.byID[e.ID()] = e
	s.entities = append(s.entities, e)
	return nil
}

// cycleLocked returns the dependency path from e back to e through the
// entities added so far, nil when there is none. Caller holds s.mu.
func (s *Scheduler) cycleLocked(e *entity.Entity) []string {
	visited := make(map[string]bool)

	var walk func(deps []entity.Ref, path []string) []string
	walk = func(deps []entity.Ref, path []string) []string {
		for _, ref := range deps {
			id := ref.ID()
			if id == e.ID() {
				return append(path, id)
			}
			dep, ok := s.byID[id]
			if !ok || visited[id] {
				continue
			}
			visited[id] = true
			if found := walk(dep.Dependencies(), append(path, id)); found != nil {
				return found
			}
		}
		return nil
	}

	return walk(e.Dependencies(), []string{e.ID()})
}

// Lookup finds an added entity by type and tag, whatever its state.
func (s *Scheduler) Lookup(typeName, tag string) (*entity.Entity, bool) {
	id := typeName
	if tag != "" {
		id = typeName + "@" + tag
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// Start initializes every entity in registration order, drops the ones that
// fail, and starts polling the survivors: each is updated immediately and
// then every interval until ctx is cancelled or Stop is called.
//
// Returns:
//   - []*entity.Entity: The surviving (Active) entities
func (s *Scheduler) Start(ctx context.Context) []*entity.Entity {
	s.mu.Lock()
	if s.started {
		active := s.active
		s.mu.Unlock()
		return active
	}
	s.started = true
	all := append([]*entity.Entity(nil), s.entities...)
	s.mu.Unlock()

	var active []*entity.Entity
	for _, e := range all {
		if !e.CallInitialize(ctx) {
			s.logger.Warn("dropping entity after failed initialize", "entity", e.ID())
			continue
		}
		active = append(active, e)
	}

	s.mu.Lock()
	s.active = active
	s.mu.Unlock()

	for _, e := range active {
		s.wg.Add(1)
		go s.pollLoop(ctx, e)
	}

	s.logger.Info("entity scheduler started", "entities", len(active), "dropped", len(all)-len(active))
	return active
}

// Active returns the entities that survived initialization.
func (s *Scheduler) Active() []*entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.Entity, len(s.active))
	copy(out, s.active)
	return out
}

// Stop ends all polling loops and waits for them to return.
// Safe to call multiple times (uses sync.Once).
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

// Wait blocks until every polling loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// pollLoop runs the periodic updates of one entity.
func (s *Scheduler) pollLoop(ctx context.Context, e *entity.Entity) {
	defer s.wg.Done()

	e.CallUpdate(ctx)

	ticker := time.NewTicker(e.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			e.CallUpdate(ctx)
		}
	}
}
