package derived

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/scheduler"
)

// counter is a source entity whose value is fixed per test.
type counter struct {
	value   any
	updates int
}

func (c *counter) Initialize(_ context.Context, e *entity.Entity) error {
	_, err := e.RegisterSensor("count")
	return err
}

func (c *counter) Update(_ context.Context, e *entity.Entity) error {
	c.updates++
	return e.SetValue("count", c.value)
}

func lookupOf(entities ...*entity.Entity) func(string, string) (*entity.Entity, bool) {
	return func(typeName, tag string) (*entity.Entity, bool) {
		for _, e := range entities {
			if e.Type() == typeName && e.Tag() == tag {
				return e, true
			}
		}
		return nil, false
	}
}

func newDerived(t *testing.T, opts map[string]any, env entity.Env) *entity.Entity {
	t.Helper()
	rec := config.NewRecord("Derived", "scaled", opts)
	h, err := New(rec, env)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return entity.New("Derived", rec, h)
}

func sourceOpts(extra map[string]any) map[string]any {
	opts := map[string]any{"source": map[string]any{"type": "Counter", "key": "count"}}
	for k, v := range extra {
		opts[k] = v
	}
	return opts
}

func TestDerived_LazyPull(t *testing.T) {
	c := &counter{value: 120}
	src := entity.New("Counter", config.NewRecord("Counter", "", nil), c)

	d := newDerived(t, sourceOpts(map[string]any{"scale": 0.5, "offset": 1.0, "unit": "min", "precision": 1}),
		entity.Env{Lookup: lookupOf(src)})

	// Source has never been initialized; Ensure pulls it in.
	if err := d.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if src.State() != entity.StateActive {
		t.Errorf("source State() = %v, want Active", src.State())
	}
	if got, _ := d.GetValue(KeyValue); got != 61.0 {
		t.Errorf("value = %v, want 61", got)
	}

	s, _ := d.Sensor(KeyValue)
	if s.Unit() != "min" {
		t.Errorf("Unit() = %q, want min", s.Unit())
	}
	if p, ok := s.Precision(); !ok || p != 1 {
		t.Errorf("Precision() = %d, %v, want 1, true", p, ok)
	}

	// A second update does not re-run the source's first update.
	d.CallUpdate(context.Background())
	if c.updates != 1 {
		t.Errorf("source updates = %d, want 1", c.updates)
	}
}

func TestDerived_StringSource(t *testing.T) {
	src := entity.New("Counter", config.NewRecord("Counter", "", nil), &counter{value: "2.5"})
	d := newDerived(t, sourceOpts(map[string]any{"scale": 2}), entity.Env{Lookup: lookupOf(src)})

	if err := d.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if got, _ := d.GetValue(KeyValue); got != 5.0 {
		t.Errorf("value = %v, want 5", got)
	}
}

func TestDerived_NonNumericSourceKeepsEntity(t *testing.T) {
	src := entity.New("Counter", config.NewRecord("Counter", "", nil), &counter{value: []int{1}})
	d := newDerived(t, sourceOpts(nil), entity.Env{Lookup: lookupOf(src)})

	if err := d.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if d.State() != entity.StateActive {
		t.Errorf("State() = %v, want Active", d.State())
	}
	if _, err := d.GetValue(KeyValue); !errors.Is(err, entity.ErrNoValue) {
		t.Errorf("GetValue() error = %v, want ErrNoValue", err)
	}
}

func TestDerived_MissingSourceFails(t *testing.T) {
	d := newDerived(t, sourceOpts(nil), entity.Env{Lookup: lookupOf()})

	if err := d.Ensure(context.Background()); !errors.Is(err, entity.ErrInitializeFailed) {
		t.Errorf("Ensure() error = %v, want ErrInitializeFailed", err)
	}
	if d.State() != entity.StateFailed {
		t.Errorf("State() = %v, want Failed", d.State())
	}
}

func TestNew_Invalid(t *testing.T) {
	lookup := lookupOf()
	tests := []struct {
		name string
		rec  config.Record
		env  entity.Env
	}{
		{
			name: "no source",
			rec:  config.NewRecord("Derived", "", nil),
			env:  entity.Env{Lookup: lookup},
		},
		{
			name: "self reference",
			rec: config.NewRecord("Derived", "loop", map[string]any{
				"source": map[string]any{"type": "Derived", "tag": "loop", "key": "value"},
			}),
			env: entity.Env{Lookup: lookup},
		},
		{
			name: "no lookup",
			rec:  config.NewRecord("Derived", "", sourceOpts(nil)),
			env:  entity.Env{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.rec, tt.env); !errors.Is(err, ErrInvalidSource) {
				t.Errorf("New() error = %v, want ErrInvalidSource", err)
			}
		})
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		in      any
		want    float64
		wantErr bool
	}{
		{3, 3, false},
		{int64(7), 7, false},
		{uint64(9), 9, false},
		{uint32(2), 2, false},
		{1.5, 1.5, false},
		{"4.25", 4.25, false},
		{"abc", 0, true},
		{true, 0, true},
	}
	for _, tt := range tests {
		got, err := toFloat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("toFloat(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("toFloat(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDerived_CycleRefused(t *testing.T) {
	sched := scheduler.New(nil)
	env := entity.Env{Lookup: sched.Lookup}

	build := func(tag, sourceTag string) *entity.Entity {
		rec := config.NewRecord("Derived", tag, map[string]any{
			"source": map[string]any{"type": "Derived", "tag": sourceTag, "key": KeyValue},
		})
		h, err := New(rec, env)
		if err != nil {
			t.Fatalf("New(%s) error = %v", tag, err)
		}
		return entity.New("Derived", rec, h)
	}

	if err := sched.Add(build("a", "b")); err != nil {
		t.Fatalf("Add(Derived@a) error = %v", err)
	}
	if err := sched.Add(build("b", "a")); !errors.Is(err, scheduler.ErrDependencyCycle) {
		t.Fatalf("Add(Derived@b) error = %v, want ErrDependencyCycle", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if active := sched.Start(ctx); len(active) != 0 {
		t.Errorf("Start() = %v, want Derived@a dropped for its missing source", active)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		sched.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after cancel")
	}
}
