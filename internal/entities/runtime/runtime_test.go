package runtime

import (
	"context"
	"testing"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

func TestRuntime(t *testing.T) {
	r := &Runtime{read: func() stats {
		return stats{goroutines: 12, heapAlloc: 4096, heapSys: 8192, numGC: 3, numCPU: 4}
	}}
	e := entity.New("Runtime", config.NewRecord("Runtime", "", nil), r)
	if err := e.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	if got, _ := e.GetValue(KeyGoroutines); got != 12 {
		t.Errorf("goroutines = %v, want 12", got)
	}
	if got, _ := e.GetValue(KeyHeapAlloc); got != uint64(4096) {
		t.Errorf("heap_alloc = %v, want 4096", got)
	}

	heap, _ := e.Sensor(KeyHeapAlloc)
	attrs := heap.ExtraAttributes()
	if attrs["gc_count"] != uint32(3) {
		t.Errorf("gc_count = %v, want 3", attrs["gc_count"])
	}
	if attrs["num_cpu"] != 4 {
		t.Errorf("num_cpu = %v, want 4", attrs["num_cpu"])
	}
}

func TestReadStats(t *testing.T) {
	s := readStats()
	if s.goroutines < 1 {
		t.Errorf("goroutines = %d, want >= 1", s.goroutines)
	}
	if s.heapAlloc == 0 {
		t.Error("heapAlloc = 0, want > 0")
	}
	if s.numCPU < 1 {
		t.Errorf("numCPU = %d, want >= 1", s.numCPU)
	}
}
