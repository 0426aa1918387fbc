package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/osadchyi/cansat-ground/internal/telemetry"
)

// Read parses an exported log back into samples, e.g. for post-flight
// rendering. Field values come back as strings; empty cells stay
// missing. Columns are matched by header name, so partial or reordered
// schemas read fine.
func Read(r io.Reader) ([]telemetry.Sample, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("export: reading header: empty input")
		}
		return nil, fmt.Errorf("export: reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	var samples []telemetry.Sample
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("export: reading line %d: %w", line, err)
		}

		sample := telemetry.Sample{Fields: make(map[string]any)}
		if i, ok := index["capture_time"]; ok && record[i] != "" {
			ts, err := time.Parse(telemetry.TimeLayout, record[i])
			if err != nil {
				return nil, fmt.Errorf("export: line %d: parsing capture time: %w", line, err)
			}
			sample.CaptureTime = ts
		}
		if i, ok := index["device_time"]; ok && record[i] != "" {
			sample.DeviceTime = record[i]
		}
		for _, name := range telemetry.FieldNames() {
			if i, ok := index[name]; ok && record[i] != "" {
				sample.Fields[name] = record[i]
			}
		}

		samples = append(samples, sample)
	}

	return samples, nil
}
