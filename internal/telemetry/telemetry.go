// Package telemetry defines the sample model shared by the transports,
// the session and the exporter.
package telemetry

import (
	"encoding/json"
	"strconv"
	"time"
)

// TimeLayout is the canonical timestamp format used for capture times
// in the feed API and the exported CSV (millisecond precision).
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Sensor field names as reported by the device. FieldNames returns them
// in canonical (CSV column) order.
const (
	FieldAltitude    = "altitude"
	FieldPressure    = "pressure"
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldBattery     = "battery"
	FieldCompass     = "compass"
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
	FieldSatellites  = "satellites"
)

var fieldNames = []string{
	FieldAltitude,
	FieldPressure,
	FieldTemperature,
	FieldHumidity,
	FieldBattery,
	FieldCompass,
	FieldLatitude,
	FieldLongitude,
	FieldSatellites,
}

// FieldNames returns the fixed sensor schema in canonical order.
// The returned slice is a copy and safe to modify.
func FieldNames() []string {
	names := make([]string, len(fieldNames))
	copy(names, fieldNames)
	return names
}

// Sample is one timestamped snapshot of device telemetry.
//
// Field values are carried verbatim as decoded from the device frame
// (json.Number for numerics, string otherwise); no unit conversion or
// validation is applied. A Sample is immutable once constructed.
type Sample struct {
	// DeviceTime is the device-reported time when the frame carried one,
	// otherwise it defaults to CaptureTime. Its concrete type is the raw
	// decoded value (json.Number or string) or time.Time for the default.
	DeviceTime any

	// CaptureTime is the station wall-clock time at receipt.
	CaptureTime time.Time

	// Fields maps sensor field names to their verbatim values. It may
	// contain names outside the fixed schema; those ride along but are
	// not part of the CSV columns.
	Fields map[string]any
}

// Field returns the raw value for name.
func (s Sample) Field(name string) (any, bool) {
	v, ok := s.Fields[name]
	return v, ok
}

// Float returns the value for name as a float64, when it is numeric or
// a numeric string.
func (s Sample) Float(name string) (float64, bool) {
	v, ok := s.Fields[name]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// IsZero reports whether the sample carries no data.
func (s Sample) IsZero() bool {
	return s.CaptureTime.IsZero() && len(s.Fields) == 0
}

// MarshalJSON renders the sample as a flat object: the verbatim sensor
// fields plus deviceTime and captureTime.
func (s Sample) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Fields)+2)
	for k, v := range s.Fields {
		m[k] = v
	}
	if t, ok := s.DeviceTime.(time.Time); ok {
		m["deviceTime"] = t.Format(TimeLayout)
	} else {
		m["deviceTime"] = s.DeviceTime
	}
	m["captureTime"] = s.CaptureTime.Format(TimeLayout)
	return json.Marshal(m)
}
