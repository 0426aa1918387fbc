package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/osadchyi/cansat-ground/internal/export"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	in, err := os.Open(config.InputFile)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer in.Close()

	samples, err := export.Read(in)
	if err != nil {
		return fmt.Errorf("reading log '%s': %w", config.InputFile, err)
	}

	data, err := NewFlightData(samples)
	if err != nil {
		return err
	}

	logger.Info("loaded flight log",
		slog.Group("stats",
			slog.Int("points", len(data.Points)),
			slog.Int("skipped", data.Skipped),
			slog.String("start", data.TimeStart.Local().Format(time.DateTime)),
			slog.String("duration", data.Duration().Round(time.Second).String()),
			slog.String("apogee", formatAltitude(data.AltitudeMax)),
		))

	if err := ctx.Err(); err != nil {
		return err
	}

	renderer, err := NewFlightRenderer(RenderConfig{FontPath: config.FontPath})
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	logger.Info("rendering chart",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
		))

	img, err := renderer.Render(data)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}

	// Do not leave a half-written image behind an interrupted run
	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	return nil
}
