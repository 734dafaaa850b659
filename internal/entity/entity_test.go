package entity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// funcHandler adapts two functions to Handler.
type funcHandler struct {
	init   func(ctx context.Context, e *Entity) error
	update func(ctx context.Context, e *Entity) error
}

func (h funcHandler) Initialize(ctx context.Context, e *Entity) error {
	if h.init == nil {
		return nil
	}
	return h.init(ctx, e)
}

func (h funcHandler) Update(ctx context.Context, e *Entity) error {
	if h.update == nil {
		return nil
	}
	return h.update(ctx, e)
}

type recordingLogger struct {
	mu     sync.Mutex
	warns  int
	errors int
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}
func (l *recordingLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func newEntity(tag string, h Handler, opts ...Option) *Entity {
	return New("Gauge", config.NewRecord("Gauge", tag, nil), h, opts...)
}

func TestEntity_Identity(t *testing.T) {
	tests := []struct {
		tag         string
		wantID      string
		wantDisplay string
	}{
		{tag: "", wantID: "Gauge", wantDisplay: "Gauge"},
		{tag: "desk lamp", wantID: "Gauge@desk lamp", wantDisplay: "Gauge @desk lamp"},
	}
	for _, tt := range tests {
		e := newEntity(tt.tag, funcHandler{})
		if got := e.ID(); got != tt.wantID {
			t.Errorf("ID() = %q, want %q", got, tt.wantID)
		}
		if got := e.DisplayName(); got != tt.wantDisplay {
			t.Errorf("DisplayName() = %q, want %q", got, tt.wantDisplay)
		}
	}
}

func TestCallInitialize_Success(t *testing.T) {
	var sensor *Sensor
	e := newEntity("x", funcHandler{
		init: func(_ context.Context, e *Entity) error {
			if e.State() != StateInitializing {
				t.Errorf("State() during Initialize = %v, want %v", e.State(), StateInitializing)
			}
			var err error
			sensor, err = e.RegisterSensor("temp", WithUnit("C"), WithPrecision(1))
			return err
		},
	})

	if e.State() != StateCreated {
		t.Fatalf("State() = %v, want %v", e.State(), StateCreated)
	}
	if !e.CallInitialize(context.Background()) {
		t.Fatal("CallInitialize() = false, want true")
	}
	if e.State() != StateActive {
		t.Errorf("State() = %v, want %v", e.State(), StateActive)
	}
	if sensor.ID() != "Gauge@x.temp" {
		t.Errorf("sensor.ID() = %q, want %q", sensor.ID(), "Gauge@x.temp")
	}
	if p, ok := sensor.Precision(); !ok || p != 1 {
		t.Errorf("Precision() = %d, %v, want 1, true", p, ok)
	}
	if sensor.Unit() != "C" {
		t.Errorf("Unit() = %q, want %q", sensor.Unit(), "C")
	}
}

func TestCallInitialize_FailureIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		init func(context.Context, *Entity) error
	}{
		{name: "error", init: func(context.Context, *Entity) error { return errors.New("no such device") }},
		{name: "panic", init: func(context.Context, *Entity) error { panic("nil map") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			calls := 0
			e := newEntity("", funcHandler{init: func(ctx context.Context, e *Entity) error {
				calls++
				return tt.init(ctx, e)
			}}, WithLogger(logger))

			if e.CallInitialize(context.Background()) {
				t.Fatal("CallInitialize() = true, want false")
			}
			if e.State() != StateFailed {
				t.Errorf("State() = %v, want %v", e.State(), StateFailed)
			}
			if logger.errors != 1 {
				t.Errorf("logged errors = %d, want 1", logger.errors)
			}

			if e.CallInitialize(context.Background()) {
				t.Error("second CallInitialize() = true, want false")
			}
			if calls != 1 {
				t.Errorf("Initialize calls = %d, want 1", calls)
			}
			if e.CallUpdate(context.Background()) {
				t.Error("CallUpdate() on failed entity = true, want false")
			}
		})
	}
}

func TestCallUpdate_FailureKeepsActive(t *testing.T) {
	logger := &recordingLogger{}
	var n atomic.Int32
	e := newEntity("", funcHandler{
		init: func(_ context.Context, e *Entity) error {
			_, err := e.RegisterSensor("count")
			return err
		},
		update: func(_ context.Context, e *Entity) error {
			switch n.Add(1) {
			case 1:
				return errors.New("transient")
			case 2:
				panic("boom")
			}
			return e.SetValue("count", int(n.Load()))
		},
	}, WithLogger(logger))

	e.CallInitialize(context.Background())

	if e.CallUpdate(context.Background()) {
		t.Error("CallUpdate() with error = true")
	}
	if e.CallUpdate(context.Background()) {
		t.Error("CallUpdate() with panic = true")
	}
	if e.State() != StateActive {
		t.Fatalf("State() = %v, want %v", e.State(), StateActive)
	}
	if logger.warns != 2 {
		t.Errorf("logged warnings = %d, want 2", logger.warns)
	}

	if !e.CallUpdate(context.Background()) {
		t.Error("CallUpdate() = false, want true")
	}
	v, err := e.GetValue("count")
	if err != nil || v != 3 {
		t.Errorf("GetValue() = %v, %v, want 3, nil", v, err)
	}
	if e.LastUpdate().IsZero() {
		t.Error("LastUpdate() is zero after a successful update")
	}
}

func TestRegistration_Rules(t *testing.T) {
	var dupErr, emptyErr, foreignErr, sensorConnErr error
	other := newEntity("other", funcHandler{init: func(_ context.Context, e *Entity) error {
		_, err := e.RegisterSensor("s")
		return err
	}})
	other.CallInitialize(context.Background())
	foreign, _ := other.Sensor("s")

	e := newEntity("", funcHandler{init: func(_ context.Context, e *Entity) error {
		own, err := e.RegisterSensor("a")
		if err != nil {
			return err
		}
		_, dupErr = e.RegisterSensor("a")
		_, emptyErr = e.RegisterSensor("")
		_, foreignErr = e.RegisterCommand("cmd", func(context.Context, []byte) error { return nil },
			WithConnectedSensors(foreign))
		_, sensorConnErr = e.RegisterSensor("b", WithConnectedSensors(own))
		return nil
	}})

	if !e.CallInitialize(context.Background()) {
		t.Fatal("CallInitialize() = false")
	}
	if !errors.Is(dupErr, ErrDuplicateKey) {
		t.Errorf("duplicate key error = %v, want ErrDuplicateKey", dupErr)
	}
	if !errors.Is(emptyErr, ErrInvalidKey) {
		t.Errorf("empty key error = %v, want ErrInvalidKey", emptyErr)
	}
	if !errors.Is(foreignErr, ErrUnknownKey) {
		t.Errorf("foreign sensor error = %v, want ErrUnknownKey", foreignErr)
	}
	if sensorConnErr == nil {
		t.Error("connected sensors on a sensor should be rejected")
	}

	if _, err := e.RegisterSensor("late"); !errors.Is(err, ErrRegistrationClosed) {
		t.Errorf("RegisterSensor() after Initialize error = %v, want ErrRegistrationClosed", err)
	}
	if got := len(e.Data()); got != 1 {
		t.Errorf("len(Data()) = %d, want 1", got)
	}
}

func TestGetValue_Errors(t *testing.T) {
	e := newEntity("", funcHandler{init: func(_ context.Context, e *Entity) error {
		if _, err := e.RegisterSensor("s"); err != nil {
			return err
		}
		_, err := e.RegisterCommand("c", func(context.Context, []byte) error { return nil })
		return err
	}})
	e.CallInitialize(context.Background())

	if _, err := e.GetValue("s"); !errors.Is(err, ErrNoValue) {
		t.Errorf("GetValue(unset) error = %v, want ErrNoValue", err)
	}
	if _, err := e.GetValue("missing"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("GetValue(missing) error = %v, want ErrUnknownKey", err)
	}
	if _, err := e.GetValue("c"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("GetValue(command) error = %v, want ErrUnknownKey", err)
	}
	if err := e.SetValue("missing", 1); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("SetValue(missing) error = %v, want ErrUnknownKey", err)
	}
	if err := e.SetExtraAttribute("missing", "a", 1); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("SetExtraAttribute(missing) error = %v, want ErrUnknownKey", err)
	}
}

func TestSensor_ExtraAttributes(t *testing.T) {
	e := newEntity("", funcHandler{init: func(_ context.Context, e *Entity) error {
		_, err := e.RegisterSensor("plain")
		if err != nil {
			return err
		}
		_, err = e.RegisterSensor("rich", WithExtraAttributes())
		return err
	}})
	e.CallInitialize(context.Background())

	plain, _ := e.Sensor("plain")
	rich, _ := e.Sensor("rich")

	if plain.SupportsExtraAttributes() {
		t.Error("plain sensor should not support attributes before any is set")
	}
	if !rich.SupportsExtraAttributes() {
		t.Error("declared sensor should support attributes")
	}
	if rich.ExtraAttributes() != nil {
		t.Error("ExtraAttributes() should be nil before any is set")
	}

	if err := e.SetExtraAttribute("plain", "since", "boot"); err != nil {
		t.Fatal(err)
	}
	attrs := plain.ExtraAttributes()
	if attrs["since"] != "boot" {
		t.Errorf("ExtraAttributes() = %v, want since=boot", attrs)
	}
	attrs["since"] = "mutated"
	if plain.ExtraAttributes()["since"] != "boot" {
		t.Error("ExtraAttributes() should return a copy")
	}
}

func TestCommand_StatefulInvoke(t *testing.T) {
	var state *Sensor
	var cmd *Command
	e := newEntity("lamp", funcHandler{init: func(_ context.Context, e *Entity) error {
		var err error
		state, err = e.RegisterSensor("state")
		if err != nil {
			return err
		}
		cmd, err = e.RegisterCommand("set", func(_ context.Context, payload []byte) error {
			switch string(payload) {
			case StateOn, StateOff:
				state.SetValue(string(payload))
				return nil
			case "PANIC":
				panic("bad state")
			}
			return errors.New("unsupported payload")
		}, WithConnectedSensors(state), WithPayload(map[string]any{"icon": "mdi:lamp"}))
		return err
	}})
	e.CallInitialize(context.Background())

	if !cmd.Stateful() || cmd.Connected()[0] != state {
		t.Fatalf("command should hold the state sensor handle")
	}
	if cmd.Payload()["icon"] != "mdi:lamp" {
		t.Errorf("Payload() = %v", cmd.Payload())
	}

	if err := cmd.Invoke(context.Background(), []byte(StateOn)); err != nil {
		t.Fatalf("Invoke(ON) error = %v", err)
	}
	if v, _ := state.Value(); v != StateOn {
		t.Errorf("state = %v, want %q", v, StateOn)
	}
	if err := cmd.Invoke(context.Background(), []byte("DIM")); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Invoke(DIM) error = %v, want ErrCommandFailed", err)
	}
	if err := cmd.Invoke(context.Background(), []byte("PANIC")); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Invoke(PANIC) error = %v, want ErrCommandFailed", err)
	}
}

func TestEnsure_LazyPull(t *testing.T) {
	var inits, updates atomic.Int32
	source := newEntity("src", funcHandler{
		init: func(_ context.Context, e *Entity) error {
			inits.Add(1)
			_, err := e.RegisterSensor("v")
			return err
		},
		update: func(_ context.Context, e *Entity) error {
			updates.Add(1)
			return e.SetValue("v", 7)
		},
	})

	if err := source.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if v, err := source.GetValue("v"); err != nil || v != 7 {
		t.Errorf("GetValue() = %v, %v, want 7", v, err)
	}

	// Already initialized and updated: no further calls.
	if err := source.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	source.CallInitialize(context.Background())
	if inits.Load() != 1 || updates.Load() != 1 {
		t.Errorf("inits, updates = %d, %d, want 1, 1", inits.Load(), updates.Load())
	}

	failed := newEntity("bad", funcHandler{init: func(context.Context, *Entity) error {
		return errors.New("broken")
	}})
	if err := failed.Ensure(context.Background()); !errors.Is(err, ErrInitializeFailed) {
		t.Errorf("Ensure() on failing entity error = %v, want ErrInitializeFailed", err)
	}
	if err := failed.Ensure(context.Background()); !errors.Is(err, ErrInitializeFailed) {
		t.Errorf("Ensure() on failed entity error = %v, want ErrInitializeFailed", err)
	}
}

func TestEnsure_MutualWaitEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var a, b *Entity
	holding := make(chan struct{}, 2)
	pull := func(other **Entity) func(context.Context, *Entity) error {
		return func(ctx context.Context, _ *Entity) error {
			holding <- struct{}{}
			// Both updates are running before either pulls the other.
			for len(holding) < 2 {
				time.Sleep(time.Millisecond)
			}
			return (*other).Ensure(ctx)
		}
	}
	a = newEntity("a", funcHandler{update: pull(&b)})
	b = newEntity("b", funcHandler{update: pull(&a)})
	a.CallInitialize(ctx)
	b.CallInitialize(ctx)

	results := make(chan bool, 2)
	go func() { results <- a.CallUpdate(ctx) }()
	go func() { results <- b.CallUpdate(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	for range 2 {
		select {
		case ok := <-results:
			if ok {
				t.Error("CallUpdate() = true, want false for a blocked pull")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("CallUpdate() still blocked after cancel")
		}
	}
}

func TestEnsure_BusyReturnsWhenContextEnds(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	e := newEntity("slow", funcHandler{update: func(context.Context, *Entity) error {
		close(started)
		<-release
		return nil
	}})
	e.CallInitialize(context.Background())

	go e.CallUpdate(context.Background())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.Ensure(ctx); !errors.Is(err, ErrLifecycleBusy) {
		t.Errorf("Ensure() error = %v, want ErrLifecycleBusy", err)
	}
	close(release)
}

func TestEntity_ConcurrentReadsDuringUpdates(t *testing.T) {
	e := newEntity("", funcHandler{
		init: func(_ context.Context, e *Entity) error {
			_, err := e.RegisterSensor("n")
			return err
		},
		update: func(_ context.Context, e *Entity) error {
			v, err := e.GetValue("n")
			if errors.Is(err, ErrNoValue) {
				v = 0
			}
			return e.SetValue("n", v.(int)+1)
		},
	})
	e.CallInitialize(context.Background())
	e.CallUpdate(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				e.CallUpdate(context.Background())
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = e.Ensure(context.Background())
				_, _ = e.GetValue("n")
			}
		}()
	}
	wg.Wait()

	if v, _ := e.GetValue("n"); v != 201 {
		t.Errorf("value = %v, want 201 (updates are serialized)", v)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "created"},
		{StateInitializing, "initializing"},
		{StateActive, "active"},
		{StateFailed, "failed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
