package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"
)

const (
	defaultPlotWidth  = 800
	defaultPlotHeight = 360
	defaultFontSize   = 12.0

	tempBandHeight = 12
	tempBandGap    = 6
	tickMarkLength = 5

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 80
	defaultBottomBorder = 90
	defaultRightBorder  = 30
)

var (
	gridColor   = color.RGBA{R: 228, G: 228, B: 228, A: 255}
	pathColor   = color.RGBA{R: 32, G: 74, B: 135, A: 255}
	noTempColor = color.RGBA{R: 210, G: 210, B: 210, A: 255}
)

// BorderConfig defines the white space around the plot area
type BorderConfig struct {
	Top    int // Top padding
	Left   int // Space for the altitude scale
	Bottom int // Space for the time scale, temperature band and info bar
	Right  int // Right padding
}

// RenderConfig holds the chart options
type RenderConfig struct {
	Width    int     // Plot area width in pixels
	Height   int     // Plot area height in pixels
	FontSize float64 // Font size in points
	FontPath string  // TTF file for labels; empty selects the built-in Go Mono face

	Borders BorderConfig
}

// FlightRenderer draws an altitude-over-time chart with a temperature
// color band underneath the plot area.
type FlightRenderer struct {
	config RenderConfig
}

// NewFlightRenderer creates a renderer with the given configuration
func NewFlightRenderer(config RenderConfig) (*FlightRenderer, error) {
	// Set defaults for zero values
	if config.Width == 0 {
		config.Width = defaultPlotWidth
	}
	if config.Height == 0 {
		config.Height = defaultPlotHeight
	}
	if config.FontSize == 0 {
		config.FontSize = defaultFontSize
	}
	if config.Borders.Top == 0 {
		config.Borders.Top = defaultTopBorder
	}
	if config.Borders.Left == 0 {
		config.Borders.Left = defaultLeftBorder
	}
	if config.Borders.Bottom == 0 {
		config.Borders.Bottom = defaultBottomBorder
	}
	if config.Borders.Right == 0 {
		config.Borders.Right = defaultRightBorder
	}

	return &FlightRenderer{config: config}, nil
}

// Render creates the annotated chart image
func (r *FlightRenderer) Render(data *FlightData) (*image.RGBA, error) {
	fullWidth := r.config.Width + r.config.Borders.Left + r.config.Borders.Right
	fullHeight := r.config.Height + r.config.Borders.Top + r.config.Borders.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	plotArea := image.Rect(
		r.config.Borders.Left,
		r.config.Borders.Top,
		r.config.Borders.Left+r.config.Width,
		r.config.Borders.Top+r.config.Height,
	)

	ann, err := newAnnotator(annotatorConfig{
		FontSize: r.config.FontSize,
		FontPath: r.config.FontPath,
		Borders:  r.config.Borders,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	// Annotations first, series on top
	if err = ann.annotate(img, plotArea, data); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	r.renderTemperatureBand(img, plotArea, data)
	r.renderAltitudePath(img, plotArea, data)

	return img, nil
}

// renderAltitudePath draws the altitude series as a 2px polyline.
func (r *FlightRenderer) renderAltitudePath(img *image.RGBA, area image.Rectangle, data *FlightData) {
	lo, hi := data.AltitudeRange()
	total := data.Duration()

	prevX, prevY := 0, 0
	for i, point := range data.Points {
		x := xForElapsed(area, point.Elapsed, total)
		y := yForAltitude(area, point.Altitude, lo, hi)
		if i > 0 {
			drawLine(img, prevX, prevY, x, y, pathColor)
			drawLine(img, prevX, prevY+1, x, y+1, pathColor)
		}
		prevX, prevY = x, y
	}
}

// renderTemperatureBand fills a strip below the plot area, one color
// per time column, stepped between samples. Columns without temperature
// render gray.
func (r *FlightRenderer) renderTemperatureBand(img *image.RGBA, area image.Rectangle, data *FlightData) {
	if !data.HasTemperature {
		return
	}

	mapper := newTempMapper(data.TemperatureMin, data.TemperatureMax)
	total := data.Duration()
	bandTop := area.Max.Y + tempBandGap

	for i := 0; i < len(data.Points)-1; i++ {
		x0 := xForElapsed(area, data.Points[i].Elapsed, total)
		x1 := xForElapsed(area, data.Points[i+1].Elapsed, total)

		var col color.Color = noTempColor
		if temp := data.Points[i].Temperature; temp != nil {
			col = mapper.Color(*temp)
		}
		for x := x0; x <= x1; x++ {
			for y := bandTop; y < bandTop+tempBandHeight; y++ {
				img.Set(x, y, col)
			}
		}
	}
}

// xForElapsed maps a time offset onto the plot area.
func xForElapsed(area image.Rectangle, elapsed, total time.Duration) int {
	ratio := float64(elapsed) / float64(total)
	return area.Min.X + int(ratio*float64(area.Dx()-1))
}

// yForAltitude maps an altitude onto the plot area, higher is up.
func yForAltitude(area image.Rectangle, altitude, lo, hi float64) int {
	ratio := (altitude - lo) / (hi - lo)
	return area.Max.Y - 1 - int(ratio*float64(area.Dy()-1))
}

// drawLine rasterizes a segment with the integer Bresenham walk.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, col color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	for {
		img.Set(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
