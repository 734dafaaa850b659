package warehouse

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
)

// FormatValue renders a sensor value as a wire payload. Strings pass
// through, numbers and booleans use their shortest text form, anything
// else is encoded as JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// Numeric converts a sensor value to a float for time-series sinks.
// Booleans map to 0 and 1, numeric strings are parsed. The bool is false for
// anything else.
func Numeric(v any) (float64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

type seen struct {
	at    time.Time
	text  string
	attrs string
}

// Tracker remembers what a warehouse last exported per sensor so each loop
// only handles what moved.
type Tracker struct {
	mu   sync.Mutex
	last map[*entity.Sensor]seen
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[*entity.Sensor]seen)}
}

// Fresh returns sensors holding a sample newer than the one seen on the
// previous call, and marks them seen.
func (t *Tracker) Fresh(src Source) []*entity.Sensor {
	return t.collect(src, func(prev, cur seen) bool { return cur.at.After(prev.at) })
}

// Changed returns sensors whose rendered value or extra attributes differ
// from the ones seen on the previous call, and marks them seen. The first
// observation of a sensor counts as a change.
func (t *Tracker) Changed(src Source) []*entity.Sensor {
	return t.collect(src, func(prev, cur seen) bool {
		return cur.text != prev.text || cur.attrs != prev.attrs
	})
}

// Forget drops all state so the next call reports every sensor again.
func (t *Tracker) Forget() {
	t.mu.Lock()
	t.last = make(map[*entity.Sensor]seen)
	t.mu.Unlock()
}

func (t *Tracker) collect(src Source, moved func(prev, cur seen) bool) []*entity.Sensor {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*entity.Sensor
	for _, s := range Sensors(src) {
		v, _ := s.Value()
		cur := seen{at: s.UpdatedAt(), text: FormatValue(v)}
		if attrs := s.ExtraAttributes(); attrs != nil {
			cur.attrs = FormatValue(attrs)
		}
		prev, ok := t.last[s]
		if ok && !moved(prev, cur) {
			continue
		}
		t.last[s] = cur
		out = append(out, s)
	}
	return out
}
