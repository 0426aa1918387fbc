package app

import (
	"fmt"
	"math"
	"time"

	"github.com/osadchyi/cansat-ground/internal/telemetry"
)

// FlightPoint is one plottable log row.
type FlightPoint struct {
	Elapsed     time.Duration
	Altitude    float64
	Temperature *float64 // nil when the row carried no temperature
}

// FlightData aggregates an exported log into the series and ranges the
// renderer works from. Rows without a usable altitude are skipped and
// counted; row order is preserved.
type FlightData struct {
	Points []FlightPoint

	TimeStart time.Time
	TimeEnd   time.Time

	AltitudeMin float64
	AltitudeMax float64

	TemperatureMin float64
	TemperatureMax float64
	HasTemperature bool

	Skipped int
}

// NewFlightData builds the chart series from exported samples.
func NewFlightData(samples []telemetry.Sample) (*FlightData, error) {
	var data FlightData

	for _, sample := range samples {
		altitude, ok := sample.Float(telemetry.FieldAltitude)
		if !ok {
			data.Skipped++
			continue
		}

		if len(data.Points) == 0 {
			data.TimeStart = sample.CaptureTime
			data.AltitudeMin, data.AltitudeMax = altitude, altitude
		}
		data.TimeEnd = sample.CaptureTime
		data.AltitudeMin = math.Min(data.AltitudeMin, altitude)
		data.AltitudeMax = math.Max(data.AltitudeMax, altitude)

		point := FlightPoint{
			Elapsed:  sample.CaptureTime.Sub(data.TimeStart),
			Altitude: altitude,
		}
		if temp, ok := sample.Float(telemetry.FieldTemperature); ok {
			point.Temperature = &temp
			if !data.HasTemperature {
				data.TemperatureMin, data.TemperatureMax = temp, temp
				data.HasTemperature = true
			}
			data.TemperatureMin = math.Min(data.TemperatureMin, temp)
			data.TemperatureMax = math.Max(data.TemperatureMax, temp)
		}

		data.Points = append(data.Points, point)
	}

	if len(data.Points) < 2 {
		return nil, fmt.Errorf("need at least two rows with an altitude, got %d (%d skipped)", len(data.Points), data.Skipped)
	}
	if !data.TimeEnd.After(data.TimeStart) {
		return nil, fmt.Errorf("log covers a zero time span")
	}

	return &data, nil
}

// Duration is the time span covered by the plot.
func (d *FlightData) Duration() time.Duration {
	return d.TimeEnd.Sub(d.TimeStart)
}

// AltitudeRange returns the plotted altitude bounds, padded when the
// track is flat so the vertical mapping stays well defined.
func (d *FlightData) AltitudeRange() (lo, hi float64) {
	lo, hi = d.AltitudeMin, d.AltitudeMax
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	return lo, hi
}
