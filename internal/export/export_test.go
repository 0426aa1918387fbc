package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/osadchyi/cansat-ground/internal/telemetry"
)

func testSample(t *testing.T, frame string, capture time.Time) telemetry.Sample {
	t.Helper()
	s, err := telemetry.ParseFrame([]byte(frame), capture)
	if err != nil {
		t.Fatalf("Failed to parse frame %q: %v", frame, err)
	}
	return s
}

func TestExport_EmptyLog(t *testing.T) {
	data, err := Export(nil)
	if !errors.Is(err, ErrEmptyLog) {
		t.Fatalf("Expected ErrEmptyLog, got %v", err)
	}
	if data != nil {
		t.Error("Expected no output for an empty log")
	}
}

func TestExport_HeaderAndRowShape(t *testing.T) {
	capture := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	log := []telemetry.Sample{
		testSample(t, `{"altitude":120.50,"temperature":25,"time":1000}`, capture),
		testSample(t, `{"altitude":121.00,"satellites":7}`, capture.Add(time.Second)),
	}

	data, err := Export(log)
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 { // 1 header + 2 rows
		t.Fatalf("Expected 3 lines, got %d: %q", len(lines), lines)
	}

	wantHeader := "device_time,capture_time,altitude,pressure,temperature,humidity,battery,compass,latitude,longitude,satellites"
	if lines[0] != wantHeader {
		t.Errorf("Expected header %q, got %q", wantHeader, lines[0])
	}

	// Values verbatim, missing fields as empty cells
	wantRow := "1000,2026-03-14T10:30:00.000Z,120.50,,25,,,,,,"
	if lines[1] != wantRow {
		t.Errorf("Expected row %q, got %q", wantRow, lines[1])
	}
	if strings.Contains(string(data), "undefined") || strings.Contains(string(data), "null") {
		t.Error("Missing fields must render as empty cells")
	}

	// Second sample has no device time: it defaults to the capture time
	if !strings.HasPrefix(lines[2], "2026-03-14T10:30:01.000Z,2026-03-14T10:30:01.000Z,121.00,") {
		t.Errorf("Expected defaulted device time in row %q", lines[2])
	}
}

func TestExport_RowCountMatchesLog(t *testing.T) {
	capture := time.Now()
	var log []telemetry.Sample
	for i := 0; i < 25; i++ {
		log = append(log, testSample(t, `{"altitude":100}`, capture))
	}

	data, err := Export(log)
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != len(log)+1 {
		t.Errorf("Expected %d lines, got %d", len(log)+1, len(lines))
	}
}

func TestExport_EscapesDelimiters(t *testing.T) {
	capture := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	log := []telemetry.Sample{
		testSample(t, `{"compass":"N, then \"NE\""}`, capture),
	}

	data, err := Export(log)
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}

	// The embedded comma must not shift columns on read-back
	samples, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to read export back: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("Expected 1 sample, got %d", len(samples))
	}
	if v, _ := samples[0].Field(telemetry.FieldCompass); v != `N, then "NE"` {
		t.Errorf("Expected quoted value to round-trip, got %v", v)
	}
	if _, ok := samples[0].Field(telemetry.FieldAltitude); ok {
		t.Error("Expected empty cell to stay missing")
	}
}

func TestExport_ReadRoundTrip(t *testing.T) {
	capture := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	log := []telemetry.Sample{
		testSample(t, `{"altitude":120.50,"temperature":25,"time":"10:29:58"}`, capture),
		testSample(t, `{"altitude":121.00}`, capture.Add(time.Second)),
	}

	data, err := Export(log)
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}

	samples, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to read export back: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}

	if alt, ok := samples[0].Float(telemetry.FieldAltitude); !ok || alt != 120.5 {
		t.Errorf("Expected altitude 120.5, got %v", alt)
	}
	if samples[0].DeviceTime != "10:29:58" {
		t.Errorf("Expected device time 10:29:58, got %v", samples[0].DeviceTime)
	}
	if !samples[0].CaptureTime.Equal(capture) {
		t.Errorf("Expected capture time %v, got %v", capture, samples[0].CaptureTime)
	}
}

func TestRead_Malformed(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad capture time", "device_time,capture_time,altitude\n1,not-a-time,2\n"},
		{"ragged row", "device_time,capture_time,altitude\n1,2\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(tc.input)); err == nil {
				t.Error("Expected error for malformed input")
			}
		})
	}
}

func TestFileSink_Save(t *testing.T) {
	dir := t.TempDir()
	sink := FileSink{Dir: filepath.Join(dir, "exports")}

	if err := sink.Save(DefaultFilename, []byte("a,b\n1,2\n")); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "exports", DefaultFilename))
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Errorf("Expected saved content to match, got %q", data)
	}

	// Path components in the name must not escape the directory
	if err := sink.Save("../escape.csv", []byte("x")); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "exports", "escape.csv")); err != nil {
		t.Errorf("Expected sanitized file inside the sink directory: %v", err)
	}
}
