package appinfo

import (
	"context"
	"runtime"
	"testing"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

func TestAppInfo(t *testing.T) {
	rec := config.NewRecord("AppInfo", "", nil)
	h, err := New(rec, entity.Env{AppName: "agent", Version: "1.4.0"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	e := entity.New("AppInfo", rec, h)
	if err := e.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{KeyName, "agent"},
		{KeyVersion, "1.4.0"},
	}
	for _, tt := range tests {
		got, err := e.GetValue(tt.key)
		if err != nil {
			t.Fatalf("GetValue(%q) error = %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("GetValue(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}

	s, _ := e.Sensor(KeyName)
	attrs := s.ExtraAttributes()
	if attrs["go_version"] != runtime.Version() {
		t.Errorf("go_version = %v, want %v", attrs["go_version"], runtime.Version())
	}
	if attrs["os"] != runtime.GOOS {
		t.Errorf("os = %v, want %v", attrs["os"], runtime.GOOS)
	}
}

func TestAppInfo_DefaultVersion(t *testing.T) {
	h, _ := New(config.Record{}, entity.Env{AppName: "agent"})
	if got := h.(*AppInfo).version; got != "dev" {
		t.Errorf("version = %q, want dev", got)
	}
}
