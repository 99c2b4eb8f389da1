package pipeline

import (
	"encoding/json"
	"strconv"
	"time"
)

// millisCutoff separates unix seconds from unix milliseconds. Anything above
// it is year 33658 in seconds, so it can only be a millisecond count.
const millisCutoff = 1e12

// ParseTimestamp accepts the three timestamp forms devices send: unix
// seconds, unix milliseconds and ISO 8601 strings. Returns false when the
// value is unparseable.
func ParseTimestamp(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return fromNumeric(t), true
	case int:
		return fromNumeric(float64(t)), true
	case int64:
		return fromNumeric(float64(t)), true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return fromNumeric(f), true
		}
		return 0, false
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts.Unix(), true
		}
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts.Unix(), true
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return fromNumeric(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func fromNumeric(f float64) int64 {
	if f >= millisCutoff {
		return int64(f / 1000)
	}
	return int64(f)
}
