// Package runtime reports Go runtime statistics of the agent process.
package runtime

import (
	"context"
	goruntime "runtime"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// Sensor keys.
const (
	KeyGoroutines = "goroutines"
	KeyHeapAlloc  = "heap_alloc"
)

// stats is the subset of runtime state published per update.
type stats struct {
	goroutines int
	heapAlloc  uint64
	heapSys    uint64
	numGC      uint32
	numCPU     int
}

func readStats() stats {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	return stats{
		goroutines: goruntime.NumGoroutine(),
		heapAlloc:  m.HeapAlloc,
		heapSys:    m.HeapSys,
		numGC:      m.NumGC,
		numCPU:     goruntime.NumCPU(),
	}
}

// Runtime publishes goroutine count and heap usage. GC count, heap
// reservation and CPU count ride along as heap_alloc attributes.
type Runtime struct {
	read func() stats
}

// New builds a Runtime entity.
func New(_ config.Record, _ entity.Env) (entity.Handler, error) {
	return &Runtime{read: readStats}, nil
}

func (r *Runtime) Initialize(_ context.Context, e *entity.Entity) error {
	if _, err := e.RegisterSensor(KeyGoroutines,
		entity.WithPrecision(0),
		entity.WithPayload(map[string]any{"state_class": "measurement", "icon": "mdi:format-list-numbered"})); err != nil {
		return err
	}
	_, err := e.RegisterSensor(KeyHeapAlloc,
		entity.WithUnit("B"),
		entity.WithPrecision(0),
		entity.WithExtraAttributes(),
		entity.WithPayload(map[string]any{"device_class": "data_size", "state_class": "measurement"}))
	return err
}

func (r *Runtime) Update(_ context.Context, e *entity.Entity) error {
	s := r.read()

	if err := e.SetValue(KeyGoroutines, s.goroutines); err != nil {
		return err
	}
	if err := e.SetValue(KeyHeapAlloc, s.heapAlloc); err != nil {
		return err
	}

	heap, err := e.Sensor(KeyHeapAlloc)
	if err != nil {
		return err
	}
	heap.SetExtraAttribute("heap_sys", s.heapSys)
	heap.SetExtraAttribute("gc_count", s.numGC)
	heap.SetExtraAttribute("num_cpu", s.numCPU)
	return nil
}
