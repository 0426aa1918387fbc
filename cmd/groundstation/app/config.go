package app

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/osadchyi/cansat-ground/internal/transport/blenotify"
	"github.com/osadchyi/cansat-ground/internal/transport/httppoll"
)

const defaultListenAddr = ":8080"

// Config is the ground station configuration. The http and ble sections
// are the adapter configs verbatim; their unset fields fall back to the
// adapter defaults when a connection is requested.
type Config struct {
	Settings Settings         `yaml:"settings"`
	Server   ServerConfig     `yaml:"server"`
	HTTP     httppoll.Config  `yaml:"http"`
	BLE      blenotify.Config `yaml:"ble"`
	Session  SessionConfig    `yaml:"session"`
	Export   ExportConfig     `yaml:"export"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level. Unset or unknown levels fall
// back to info.
func (s Settings) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ServerConfig configures the dashboard listener.
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// SessionConfig configures session behaviour.
type SessionConfig struct {
	ClearLatestOnDisconnect bool `yaml:"clearLatestOnDisconnect"`
	SampleBacklog           int  `yaml:"sampleBacklog"`
}

// ExportConfig configures where exported logs are written.
type ExportConfig struct {
	Directory string `yaml:"directory"`
}

// LoadConfig reads a YAML configuration file. An empty path yields the
// built-in defaults; transport settings are validated when a connection
// is requested, not here.
func LoadConfig(path string) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading configuration: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parsing configuration: %w", err)
		}
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Export.Directory == "" {
		c.Export.Directory = "."
	}
}
