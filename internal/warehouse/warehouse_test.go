package warehouse

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

type staticSource []*entity.Entity

func (s staticSource) Active() []*entity.Entity { return s }

type sensorHandler struct {
	keys []string
}

func (h sensorHandler) Initialize(_ context.Context, e *entity.Entity) error {
	for _, k := range h.keys {
		if _, err := e.RegisterSensor(k); err != nil {
			return err
		}
	}
	_, err := e.RegisterCommand("reset", func(context.Context, []byte) error { return nil })
	return err
}

func (sensorHandler) Update(context.Context, *entity.Entity) error { return nil }

type loopHandler struct {
	loops    atomic.Int32
	startErr error
	stopped  atomic.Bool
	failLoop bool
	panicky  bool
}

func (h *loopHandler) Loop(context.Context) error {
	n := h.loops.Add(1)
	if h.panicky && n == 1 {
		panic("first loop")
	}
	if h.failLoop {
		return errors.New("sink unavailable")
	}
	return nil
}

func (h *loopHandler) Start(context.Context) error { return h.startErr }

func (h *loopHandler) Stop(context.Context) error {
	h.stopped.Store(true)
	return nil
}

type plainHandler struct{ loops atomic.Int32 }

func (h *plainHandler) Loop(context.Context) error {
	h.loops.Add(1)
	return nil
}

type countingLogger struct {
	mu    sync.Mutex
	warns int
}

func (l *countingLogger) Debug(string, ...any) {}
func (l *countingLogger) Info(string, ...any)  {}
func (l *countingLogger) Error(string, ...any) {}
func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
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

func TestRun_LoopsImmediatelyThenOnInterval(t *testing.T) {
	h := &loopHandler{}
	w := New("Gauge", config.NewRecord("Gauge", "", nil), h, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return h.loops.Load() >= 3 })
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_ErrorsAndPanicsAreNotFatal(t *testing.T) {
	logger := &countingLogger{}
	h := &loopHandler{failLoop: true, panicky: true}
	w := New("Gauge", config.NewRecord("Gauge", "", nil), h, 5*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, func() bool { return h.loops.Load() >= 3 })

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if logger.warns < 2 {
		t.Errorf("logged warnings = %d, want at least 2", logger.warns)
	}
}

func TestWarehouse_StartStopOptional(t *testing.T) {
	plain := New("Plain", config.NewRecord("Plain", "", nil), &plainHandler{}, 0, nil)
	if err := plain.Start(context.Background()); err != nil {
		t.Errorf("Start() without Starter error = %v", err)
	}
	if err := plain.Stop(context.Background()); err != nil {
		t.Errorf("Stop() without Stopper error = %v", err)
	}
	if plain.Interval() != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", plain.Interval(), DefaultInterval)
	}

	failing := New("Failing", config.NewRecord("Failing", "x", nil), &loopHandler{startErr: errors.New("refused")}, 0, nil)
	err := failing.Start(context.Background())
	if !errors.Is(err, ErrStartFailed) {
		t.Errorf("Start() error = %v, want ErrStartFailed", err)
	}
	if failing.ID() != "Failing@x" {
		t.Errorf("ID() = %q, want %q", failing.ID(), "Failing@x")
	}
}

func TestGroup_DropsFailedStartsAndStopsRunning(t *testing.T) {
	good := &loopHandler{}
	bad := &loopHandler{startErr: errors.New("broker unreachable")}

	g := NewGroup(nil)
	g.Add(New("Good", config.NewRecord("Good", "", nil), good, time.Hour, nil))
	g.Add(New("Bad", config.NewRecord("Bad", "", nil), bad, time.Hour, nil))

	ctx, cancel := context.WithCancel(context.Background())
	running := g.Start(ctx)
	if len(running) != 1 || running[0].Type() != "Good" {
		t.Fatalf("Start() = %v, want only Good", running)
	}

	waitFor(t, func() bool { return good.loops.Load() == 1 })
	if bad.loops.Load() != 0 {
		t.Error("dropped warehouse should never loop")
	}

	cancel()
	g.Stop(context.Background())

	if !good.stopped.Load() {
		t.Error("running warehouse was not stopped")
	}
	if bad.stopped.Load() {
		t.Error("dropped warehouse should not be stopped")
	}
}

func TestSensorsAndCommands(t *testing.T) {
	a := entity.New("A", config.NewRecord("A", "", nil), sensorHandler{keys: []string{"x", "y"}})
	b := entity.New("B", config.NewRecord("B", "", nil), sensorHandler{keys: []string{"z"}})
	for _, e := range []*entity.Entity{a, b} {
		if !e.CallInitialize(context.Background()) {
			t.Fatal("initialize failed")
		}
	}
	_ = a.SetValue("y", 1)
	_ = b.SetValue("z", 2)

	src := staticSource{a, b}

	sensors := Sensors(src)
	if len(sensors) != 2 || sensors[0].ID() != "A.y" || sensors[1].ID() != "B.z" {
		ids := make([]string, len(sensors))
		for i, s := range sensors {
			ids[i] = s.ID()
		}
		t.Errorf("Sensors() = %v, want [A.y B.z]", ids)
	}

	if got := len(Commands(src)); got != 2 {
		t.Errorf("len(Commands()) = %d, want 2", got)
	}
	if got := len(Data(src)); got != 5 {
		t.Errorf("len(Data()) = %d, want 5", got)
	}
}
