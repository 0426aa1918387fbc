package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// deviceTimeKey is the optional frame field carrying the device clock.
const deviceTimeKey = "time"

// ParseFrame decodes one raw device frame (UTF-8 JSON object) into a
// Sample captured at the given time.
//
// Numeric values are preserved verbatim via json.Number so the exported
// CSV reproduces exactly what the device sent. The optional "time" field
// becomes DeviceTime; when absent, DeviceTime defaults to capture.
func ParseFrame(data []byte, capture time.Time) (Sample, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Sample{}, fmt.Errorf("telemetry: decoding frame: %w", err)
	}

	s := Sample{
		CaptureTime: capture,
		Fields:      make(map[string]any, len(raw)),
	}
	for k, v := range raw {
		if k == deviceTimeKey {
			s.DeviceTime = v
			continue
		}
		s.Fields[k] = v
	}
	if s.DeviceTime == nil {
		s.DeviceTime = capture
	}

	return s, nil
}

// FormatValue renders a raw field value as a CSV cell. Missing values
// (nil) render as the empty string, never as a null literal.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case time.Time:
		return t.Format(TimeLayout)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
