package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/osadchyi/cansat-ground/internal/export"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	InputFile  string
	OutputFile string
	Format     ImageFormat
	FontPath   string
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		InputFile: export.DefaultFilename,
		Format:    ImagePNG,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat string
	flag.StringVar(&c.InputFile, "i", c.InputFile, "Path to the exported CSV log")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&c.FontPath, "font", "", "Path to a TTF font for labels (built-in Go Mono when empty)")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)

	var err error
	if c.InputFile == "" {
		err = errors.New("input log is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
