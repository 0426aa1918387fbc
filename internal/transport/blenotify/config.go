package blenotify

import (
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/osadchyi/cansat-ground/internal/transport"
)

const (
	// DefaultNamePrefix selects the device during scan.
	DefaultNamePrefix = "CanSat"

	// Default GATT identifiers of the telemetry link (HM-10 style
	// UART-over-BLE: service FFE0, notify characteristic FFE1).
	DefaultServiceUUID        = "0000ffe0-0000-1000-8000-00805f9b34fb"
	DefaultCharacteristicUUID = "0000ffe1-0000-1000-8000-00805f9b34fb"

	// DefaultScanTimeout bounds the device discovery phase.
	DefaultScanTimeout = transport.TimeDuration(15 * time.Second)
)

// Config is the BLE notification adapter configuration.
type Config struct {
	// NamePrefix filters advertised device names during scan.
	NamePrefix string `yaml:"namePrefix" json:"namePrefix"`

	// ServiceUUID is the telemetry GATT service.
	ServiceUUID string `yaml:"serviceUUID" json:"serviceUUID"`

	// CharacteristicUUID is the notifying characteristic carrying
	// UTF-8 JSON frames.
	CharacteristicUUID string `yaml:"characteristicUUID" json:"characteristicUUID"`

	// ScanTimeout bounds the scan phase of Connect (default: 15s).
	ScanTimeout transport.TimeDuration `yaml:"scanTimeout" json:"scanTimeout"`
}

func (c *Config) applyDefaults() {
	if c.NamePrefix == "" {
		c.NamePrefix = DefaultNamePrefix
	}
	if c.ServiceUUID == "" {
		c.ServiceUUID = DefaultServiceUUID
	}
	if c.CharacteristicUUID == "" {
		c.CharacteristicUUID = DefaultCharacteristicUUID
	}
	if c.ScanTimeout == 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.NamePrefix) == "" {
		return fmt.Errorf("blenotify.Config: name prefix must not be empty")
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("blenotify.Config: scan timeout must not be negative: %s", c.ScanTimeout)
	}
	if _, err := c.serviceUUID(); err != nil {
		return err
	}
	if _, err := c.characteristicUUID(); err != nil {
		return err
	}
	return nil
}

func (c *Config) serviceUUID() (bluetooth.UUID, error) {
	uuid, err := bluetooth.ParseUUID(c.ServiceUUID)
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("blenotify.Config: invalid service UUID %q: %w", c.ServiceUUID, err)
	}
	return uuid, nil
}

func (c *Config) characteristicUUID() (bluetooth.UUID, error) {
	uuid, err := bluetooth.ParseUUID(c.CharacteristicUUID)
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("blenotify.Config: invalid characteristic UUID %q: %w", c.CharacteristicUUID, err)
	}
	return uuid, nil
}
