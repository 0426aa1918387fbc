package app

import (
	"image/color"
	"math"
)

const tempMapSize = 128

// tempMapper maps temperatures onto a pre-computed cold-to-hot gradient.
type tempMapper struct {
	colors   []color.Color
	min      float64
	perIndex float64
}

func newTempMapper(min, max float64) *tempMapper {
	m := tempMapper{
		colors: make([]color.Color, tempMapSize),
		min:    min,
	}

	span := max - min
	if span <= 0 {
		span = 1
	}
	m.perIndex = span / float64(tempMapSize-1)

	for i := range m.colors {
		m.colors[i] = tempColor(float64(i) / float64(tempMapSize-1))
	}
	return &m
}

func (m *tempMapper) Color(temp float64) color.Color {
	index := int((temp - m.min) / m.perIndex)
	if index < 0 {
		index = 0
	}
	if index >= len(m.colors) {
		index = len(m.colors) - 1
	}
	return m.colors[index]
}

// tempColor sweeps the hue from blue (cold) to red (hot).
func tempColor(normalized float64) color.Color {
	normalized = math.Max(0, math.Min(1, normalized))
	return HSV{
		H: 240 - (normalized * 240),
		S: 0.85,
		V: 0.95,
	}.RGB()
}

// HSV represents a color in HSV (Hue, Saturation, Value) color space
type HSV struct {
	H float64 // Hue angle in degrees [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value/Brightness [0-1]
}

// RGB converts HSV to RGB color space efficiently
func (hsv HSV) RGB() color.Color {
	// Fast path for grayscale
	if hsv.S <= 0.0 {
		v := uint8(hsv.V * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	// Normalize hue to [0-6)
	h := hsv.H
	if h >= 360 {
		h -= 360
	}
	h /= 60

	i := int(h)
	f := h - float64(i)

	v := uint8(hsv.V * 255)
	p := uint8((hsv.V * (1 - hsv.S)) * 255)
	q := uint8((hsv.V * (1 - (hsv.S * f))) * 255)
	t := uint8((hsv.V * (1 - (hsv.S * (1 - f)))) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default: // case 5:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}
