// Package export serializes the session log to CSV and reads it back.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/osadchyi/cansat-ground/internal/telemetry"
)

// DefaultFilename is used when the caller does not name the export.
const DefaultFilename = "cansat_log.csv"

// ErrEmptyLog is returned when there is nothing to export. Callers
// surface it as a user notice; no file is produced.
var ErrEmptyLog = errors.New("export: log is empty")

// timeColumns precede the sensor fields in the schema.
var timeColumns = []string{"device_time", "capture_time"}

// Columns returns the fixed CSV schema: the two timestamps followed by
// the sensor fields in canonical order.
func Columns() []string {
	return append(append([]string(nil), timeColumns...), telemetry.FieldNames()...)
}

// Export serializes the log in insertion order: one header row, one row
// per sample. A sample missing a field renders that cell as the empty
// string. Values containing delimiters, quotes or newlines are quoted
// per RFC 4180.
func Export(log []telemetry.Sample) ([]byte, error) {
	if len(log) == 0 {
		return nil, ErrEmptyLog
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Columns()); err != nil {
		return nil, fmt.Errorf("export: writing header: %w", err)
	}
	for i, sample := range log {
		if err := w.Write(row(sample)); err != nil {
			return nil, fmt.Errorf("export: writing row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export: flushing: %w", err)
	}

	return buf.Bytes(), nil
}

func row(sample telemetry.Sample) []string {
	cells := make([]string, 0, len(timeColumns)+len(telemetry.FieldNames()))
	cells = append(cells,
		telemetry.FormatValue(sample.DeviceTime),
		sample.CaptureTime.Format(telemetry.TimeLayout),
	)
	for _, name := range telemetry.FieldNames() {
		value, _ := sample.Field(name)
		cells = append(cells, telemetry.FormatValue(value))
	}
	return cells
}
