package app

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	dpi            = 72.0
	pixelsPerLabel = 60.0 // vertical spacing target for altitude labels
)

type annotatorConfig struct {
	FontSize float64
	FontPath string
	Borders  BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	fontBytes, err := loadFont(config.FontPath)
	if err != nil {
		return nil, err
	}

	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

// loadFont reads the label font, falling back to the Go Mono face
// shipped with golang.org/x/image when no path is given.
func loadFont(path string) ([]byte, error) {
	if path == "" {
		return gomono.TTF, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading font: %w", err)
	}
	return data, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, area image.Rectangle, data *FlightData) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, image.Rectangle, *FlightData) error
	}{
		{"drawing altitude scale", a.drawAltitudeScale},
		{"drawing time scale", a.drawTimeScale},
		{"drawing info bar", a.drawInfoBar},
	}
	for _, op := range ops {
		if err := op.fn(img, area, data); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) drawAltitudeScale(img *image.RGBA, area image.Rectangle, data *FlightData) error {
	lo, hi := data.AltitudeRange()
	step := niceAltitudeStep(hi-lo, area.Dy())

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for v := math.Ceil(lo/step) * step; v <= hi; v += step {
		y := yForAltitude(area, v, lo, hi)

		// Gridline across the plot, tick into the left border
		for x := area.Min.X; x < area.Max.X; x++ {
			img.Set(x, y, gridColor)
		}
		for x := area.Min.X - tickMarkLength; x < area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := formatAltitude(v)
		width := font.MeasureString(a.fontFace, label)
		textY := y + fontHeight/2 - metrics.Descent.Round()
		pt := freetype.Pt(area.Min.X-tickMarkLength-4-width.Round(), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing altitude label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, area image.Rectangle, data *FlightData) error {
	total := data.Duration()
	step := niceTimeStep(total)

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	// Labels sit below the temperature band
	textY := area.Max.Y + tempBandGap + tempBandHeight + fontHeight + 2

	for elapsed := time.Duration(0); elapsed <= total; elapsed += step {
		x := xForElapsed(area, elapsed, total)

		for y := area.Min.Y; y < area.Max.Y; y++ {
			img.Set(x, y, gridColor)
		}
		for y := area.Max.Y; y < area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatElapsed(elapsed)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-width.Round()/2, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, _ image.Rectangle, data *FlightData) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Flight: %s - %s",
		data.TimeStart.Local().Format(time.DateTime),
		data.TimeEnd.Local().Format(time.DateTime)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Apogee: %s", formatAltitude(data.AltitudeMax)))
	if data.HasTemperature {
		sb.WriteString("; ")
		sb.WriteString(fmt.Sprintf("Temp: %.1f°C to %.1f°C", data.TemperatureMin, data.TemperatureMax))
	}
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("%d samples", len(data.Points)))

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - metrics.Descent.Round() - 6

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

// Helper functions

func niceAltitudeStep(span float64, height int) float64 {
	// Standard step sizes in meters
	steps := []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1_000, 2_000, 5_000}

	desiredSteps := float64(height) / pixelsPerLabel
	targetStep := span / desiredSteps

	for _, step := range steps {
		if step >= targetStep {
			// Keep at least two labelled lines
			if span/step >= 2 {
				return step
			}
			break
		}
	}

	return span / 2
}

func niceTimeStep(duration time.Duration) time.Duration {
	seconds := duration.Seconds()
	roughStep := seconds / 8 // Aim for about 8 time labels

	// Nice time intervals in seconds
	niceIntervals := []float64{
		5,    // 5 seconds
		10,   // 10 seconds
		15,   // 15 seconds
		30,   // 30 seconds
		60,   // 1 minute
		120,  // 2 minutes
		300,  // 5 minutes
		600,  // 10 minutes
		1800, // 30 minutes
		3600, // 1 hour
	}

	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return time.Duration(interval) * time.Second
		}
	}

	return 2 * time.Hour // Default for very long recordings
}

func formatAltitude(meters float64) string {
	fract, suffix := humanize.ComputeSI(meters)
	if suffix == "" {
		return fmt.Sprintf("%.0f m", fract)
	}
	return fmt.Sprintf("%.1f %sm", fract, suffix)
}

func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
