package warehouse

import (
	"context"
	"sync"
)

// Group runs a set of warehouses, one goroutine each.
type Group struct {
	logger Logger

	mu      sync.Mutex
	members []*Warehouse
	running []*Warehouse
	wg      sync.WaitGroup
}

// NewGroup creates an empty group. A nil logger discards output.
func NewGroup(logger Logger) *Group {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Group{logger: logger}
}

// Add registers a warehouse.
func (g *Group) Add(w *Warehouse) {
	g.mu.Lock()
	g.members = append(g.members, w)
	g.mu.Unlock()
}

// Start starts every warehouse, drops the ones whose Start fails and runs
// the loops of the rest until ctx is cancelled.
//
// Returns:
//   - []*Warehouse: The running warehouses
func (g *Group) Start(ctx context.Context) []*Warehouse {
	g.mu.Lock()
	members := append([]*Warehouse(nil), g.members...)
	g.mu.Unlock()

	var running []*Warehouse
	for _, w := range members {
		if err := w.Start(ctx); err != nil {
			g.logger.Error("dropping warehouse after failed start", "warehouse", w.ID(), "error", err)
			continue
		}
		running = append(running, w)
	}

	g.mu.Lock()
	g.running = running
	g.mu.Unlock()

	for _, w := range running {
		g.wg.Add(1)
		go func(w *Warehouse) {
			defer g.wg.Done()
			w.Run(ctx)
		}(w)
	}

	g.logger.Info("warehouses started", "warehouses", len(running), "dropped", len(members)-len(running))
	return running
}

// Wait blocks until every loop has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Stop waits for the loops to return and then stops every running
// warehouse in reverse start order. ctx bounds the Stop calls, not the wait.
func (g *Group) Stop(ctx context.Context) {
	g.wg.Wait()

	g.mu.Lock()
	running := append([]*Warehouse(nil), g.running...)
	g.mu.Unlock()

	for i := len(running) - 1; i >= 0; i-- {
		if err := running[i].Stop(ctx); err != nil {
			g.logger.Warn("warehouse stop failed", "warehouse", running[i].ID(), "error", err)
		}
	}
}
