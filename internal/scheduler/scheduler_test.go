package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

type countingHandler struct {
	initErr error
	updates atomic.Int32
}

func (h *countingHandler) Initialize(_ context.Context, e *entity.Entity) error {
	if h.initErr != nil {
		return h.initErr
	}
	_, err := e.RegisterSensor("count")
	return err
}

func (h *countingHandler) Update(_ context.Context, e *entity.Entity) error {
	return e.SetValue("count", int(h.updates.Add(1)))
}

func newEntity(typeName, tag string, h entity.Handler, interval time.Duration) *entity.Entity {
	return entity.New(typeName, config.NewRecord(typeName, tag, nil), h, entity.WithInterval(interval))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestAdd_DuplicateIdentity(t *testing.T) {
	s := New(nil)

	if err := s.Add(newEntity("VirtualSwitch", "lamp", &countingHandler{}, time.Second)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Add(newEntity("VirtualSwitch", "fan", &countingHandler{}, time.Second)); err != nil {
		t.Fatalf("Add() with distinct tag error = %v", err)
	}
	err := s.Add(newEntity("VirtualSwitch", "lamp", &countingHandler{}, time.Second))
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Errorf("Add(duplicate) error = %v, want ErrDuplicateIdentity", err)
	}
}

// dependent reads the entities named in deps.
type dependent struct {
	countingHandler
	deps []entity.Ref
}

func (d *dependent) Dependencies() []entity.Ref { return d.deps }

func TestAdd_DependencyCycle(t *testing.T) {
	tests := []struct {
		name    string
		chain   [][2]string // tag, depends-on tag
		wantErr bool
	}{
		{"chain", [][2]string{{"a", "b"}, {"b", "c"}, {"c", ""}}, false},
		{"pair", [][2]string{{"a", "b"}, {"b", "a"}}, true},
		{"triangle", [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}}, true},
		{"dangling", [][2]string{{"a", "missing"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil)
			var err error
			for _, link := range tt.chain {
				h := &dependent{}
				if link[1] != "" {
					h.deps = []entity.Ref{{Type: "Calc", Tag: link[1]}}
				}
				if err = s.Add(newEntity("Calc", link[0], h, time.Second)); err != nil {
					break
				}
			}
			if tt.wantErr != errors.Is(err, ErrDependencyCycle) {
				t.Errorf("Add() error = %v, want cycle %v", err, tt.wantErr)
			}
		})
	}
}

func TestStart_DropsFailedEntities(t *testing.T) {
	s := New(nil)
	good := newEntity("Good", "", &countingHandler{}, time.Hour)
	bad := newEntity("Bad", "", &countingHandler{initErr: errors.New("no sensor")}, time.Hour)
	for _, e := range []*entity.Entity{bad, good} {
		if err := s.Add(e); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	active := s.Start(ctx)
	if len(active) != 1 || active[0] != good {
		t.Fatalf("Start() = %v, want only Good", active)
	}
	if bad.State() != entity.StateFailed {
		t.Errorf("bad.State() = %v, want failed", bad.State())
	}
	if got := s.Active(); len(got) != 1 {
		t.Errorf("Active() = %v, want 1 entity", got)
	}

	// Failed entities remain resolvable for diagnostics.
	if e, ok := s.Lookup("Bad", ""); !ok || e != bad {
		t.Error("Lookup(Bad) should find the failed entity")
	}

	if err := s.Add(newEntity("Late", "", &countingHandler{}, time.Hour)); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Add() after Start error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStart_ImmediateFirstUpdate(t *testing.T) {
	s := New(nil)
	h := &countingHandler{}
	e := newEntity("Slow", "", h, time.Hour)
	if err := s.Add(e); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, func() bool { return h.updates.Load() == 1 })
	if v, err := e.GetValue("count"); err != nil || v != 1 {
		t.Errorf("GetValue() = %v, %v, want 1", v, err)
	}
}

func TestStart_IndependentIntervals(t *testing.T) {
	s := New(nil)
	fast := &countingHandler{}
	slow := &countingHandler{}
	if err := s.Add(newEntity("Fast", "", fast, 10*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(newEntity("Slow", "", slow, time.Hour)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	waitFor(t, func() bool { return fast.updates.Load() >= 5 })
	cancel()
	s.Wait()

	if got := slow.updates.Load(); got != 1 {
		t.Errorf("slow updates = %d, want 1", got)
	}
}

func TestStop(t *testing.T) {
	s := New(nil)
	h := &countingHandler{}
	if err := s.Add(newEntity("Ticker", "", h, 5*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	waitFor(t, func() bool { return h.updates.Load() >= 2 })

	s.Stop()
	s.Stop()

	after := h.updates.Load()
	time.Sleep(30 * time.Millisecond)
	if h.updates.Load() != after {
		t.Error("updates continued after Stop")
	}
}

func TestStart_ZeroSurvivors(t *testing.T) {
	s := New(nil)
	if err := s.Add(newEntity("Bad", "", &countingHandler{initErr: errors.New("x")}, time.Second)); err != nil {
		t.Fatal(err)
	}
	if active := s.Start(context.Background()); len(active) != 0 {
		t.Errorf("Start() = %v, want none", active)
	}
	s.Stop()
}

func TestLookup(t *testing.T) {
	s := New(nil)
	plain := newEntity("Uptime", "", &countingHandler{}, time.Second)
	tagged := newEntity("Uptime", "boot", &countingHandler{}, time.Second)
	_ = s.Add(plain)
	_ = s.Add(tagged)

	if e, ok := s.Lookup("Uptime", ""); !ok || e != plain {
		t.Error("Lookup(Uptime, \"\") did not return the untagged entity")
	}
	if e, ok := s.Lookup("Uptime", "boot"); !ok || e != tagged {
		t.Error("Lookup(Uptime, boot) did not return the tagged entity")
	}
	if _, ok := s.Lookup("Uptime", "other"); ok {
		t.Error("Lookup(Uptime, other) = true, want false")
	}
}
