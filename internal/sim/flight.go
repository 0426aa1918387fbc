// Package sim provides a deterministic CanSat flight model and a fake
// device serving the station's HTTP contract, for bench work and tests
// without hardware.
package sim

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Flight profile defaults, loosely a 500 m sounding flight from a
// Spanish launch range.
const (
	DefaultGroundAltitude = 620.0 // m above sea level
	DefaultApogee         = 500.0 // m above ground
	DefaultAscentRate     = 8.0   // m/s
	DefaultDescentRate    = 5.0   // m/s under parachute

	launchLatitude  = 40.4168
	launchLongitude = -3.7038

	seaLevelPressure = 1013.25 // hPa
	fullBattery      = 4.2     // V, single LiPo cell
)

// Reading is one instant of simulated telemetry.
type Reading struct {
	Altitude    float64
	Pressure    float64
	Temperature float64
	Humidity    float64
	Battery     float64
	Compass     float64
	Latitude    float64
	Longitude   float64
	Satellites  int
	DeviceTime  int64 // ms since power-on
}

// Flight generates readings along a parabola-free, piecewise-linear
// ascent/descent profile with seeded sensor jitter: the same seed and
// the same sequence of calls reproduce the same flight.
type Flight struct {
	mu  sync.Mutex
	rng *rand.Rand

	groundAltitude float64
	apogee         float64
	ascentRate     float64
	descentRate    float64
}

// NewFlight creates a flight with the default profile.
func NewFlight(seed int64) *Flight {
	return &Flight{
		rng:            rand.New(rand.NewSource(seed)),
		groundAltitude: DefaultGroundAltitude,
		apogee:         DefaultApogee,
		ascentRate:     DefaultAscentRate,
		descentRate:    DefaultDescentRate,
	}
}

// At returns the reading at the given time since launch.
func (f *Flight) At(elapsed time.Duration) Reading {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := elapsed.Seconds()
	height := f.heightAboveGround(t)
	altitude := f.groundAltitude + height

	// Standard atmosphere against altitude, plus sensor noise
	pressure := seaLevelPressure * math.Pow(1-2.25577e-5*altitude, 5.25588)
	temperature := 15.0 - 0.0065*altitude + f.rng.NormFloat64()*0.2
	humidity := clamp(45+15*math.Sin(t/40)+f.rng.NormFloat64(), 0, 100)

	// The can spins slowly under the parachute
	compass := math.Mod(t*12+f.rng.NormFloat64()*3+360, 360)

	// Wind drifts the descent eastward
	drift := math.Min(t, f.flightDuration()) * 1.5 // m ground track
	latitude := launchLatitude + (f.rng.NormFloat64()*2)/111_000
	longitude := launchLongitude + (drift+f.rng.NormFloat64()*2)/85_000

	return Reading{
		Altitude:    round2(altitude),
		Pressure:    round2(pressure),
		Temperature: round2(temperature),
		Humidity:    round2(humidity),
		Battery:     round2(f.battery(t)),
		Compass:     round2(compass),
		Latitude:    round6(latitude),
		Longitude:   round6(longitude),
		Satellites:  f.satellites(t),
		DeviceTime:  elapsed.Milliseconds(),
	}
}

// heightAboveGround is the piecewise profile: up at the ascent rate,
// down at the descent rate, then resting on the ground.
func (f *Flight) heightAboveGround(t float64) float64 {
	ascentEnd := f.apogee / f.ascentRate
	switch {
	case t <= 0:
		return 0
	case t <= ascentEnd:
		return t * f.ascentRate
	case t <= f.flightDuration():
		return f.apogee - (t-ascentEnd)*f.descentRate
	default:
		return 0
	}
}

func (f *Flight) flightDuration() float64 {
	return f.apogee/f.ascentRate + f.apogee/f.descentRate
}

func (f *Flight) battery(t float64) float64 {
	// Roughly 0.3 V sag over a 20 minute mission
	return clamp(fullBattery-t*0.00025, 3.3, fullBattery)
}

func (f *Flight) satellites(t float64) int {
	// Cold start: no fix for the first seconds, then a growing view
	if t < 4 {
		return 0
	}
	n := 4 + int(t/15)
	if n > 11 {
		n = 11
	}
	return n + f.rng.Intn(2)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
