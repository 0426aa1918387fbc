package blenotify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// backend abstracts the BLE stack so the stream logic is testable
// without radio hardware.
type backend interface {
	// subscribe scans for a matching device, connects, resolves the
	// telemetry characteristic and enables notifications. Each
	// notification payload is handed to notify; the payload is only
	// valid for the duration of the call.
	subscribe(ctx context.Context, config Config, notify func(payload []byte)) (subscription, error)
}

// subscription is a live notification stream on one peripheral.
type subscription interface {
	// Close unsubscribes and disconnects. Idempotent at the adapter
	// level: closing a dead link reports no error worth acting on.
	Close() error

	DeviceName() string
	Address() string
}

// The adapter may be powered up only once per process.
var (
	enableOnce sync.Once
	enableErr  error
)

// central drives the platform BLE adapter (BlueZ on Linux).
type central struct {
	adapter *bluetooth.Adapter
}

func newCentral() *central {
	return &central{adapter: bluetooth.DefaultAdapter}
}

func (c *central) subscribe(ctx context.Context, config Config, notify func(payload []byte)) (subscription, error) {
	enableOnce.Do(func() { enableErr = c.adapter.Enable() })
	if enableErr != nil {
		return nil, fmt.Errorf("blenotify: enabling adapter: %w", enableErr)
	}

	serviceUUID, err := config.serviceUUID()
	if err != nil {
		return nil, err
	}
	charUUID, err := config.characteristicUUID()
	if err != nil {
		return nil, err
	}

	result, err := c.scan(ctx, config)
	if err != nil {
		return nil, err
	}

	device, err := c.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("blenotify: connecting to %s: %w", result.Address.String(), err)
	}

	char, err := resolveCharacteristic(device, serviceUUID, charUUID)
	if err != nil {
		device.Disconnect()
		return nil, err
	}

	if err := char.EnableNotifications(notify); err != nil {
		device.Disconnect()
		return nil, fmt.Errorf("blenotify: enabling notifications: %w", err)
	}

	return &peripheral{
		device:  device,
		char:    char,
		name:    result.LocalName(),
		address: result.Address.String(),
	}, nil
}

// scan blocks until a device whose advertised name starts with the
// configured prefix is found, or the scan window closes.
func (c *central) scan(ctx context.Context, config Config) (bluetooth.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(config.ScanTimeout))
	defer cancel()

	found := make(chan bluetooth.ScanResult, 1)

	// Scan blocks until StopScan; release it when the window closes.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.adapter.StopScan()
		case <-done:
		}
	}()

	err := c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !strings.HasPrefix(result.LocalName(), config.NamePrefix) {
			return
		}
		select {
		case found <- result:
		default:
		}
		adapter.StopScan()
	})
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("blenotify: scanning: %w", err)
	}

	select {
	case result := <-found:
		return result, nil
	default:
		return bluetooth.ScanResult{}, fmt.Errorf("%w: no device named %q* within %s",
			ErrDeviceNotFound, config.NamePrefix, config.ScanTimeout)
	}
}

func resolveCharacteristic(device bluetooth.Device, serviceUUID, charUUID bluetooth.UUID) (bluetooth.DeviceCharacteristic, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("blenotify: discovering service: %w", err)
	}
	if len(services) == 0 {
		return bluetooth.DeviceCharacteristic{}, ErrServiceNotFound
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("blenotify: discovering characteristic: %w", err)
	}
	if len(chars) == 0 {
		return bluetooth.DeviceCharacteristic{}, ErrCharacteristicNotFound
	}

	return chars[0], nil
}

// peripheral is a connected device with an active notification stream.
type peripheral struct {
	device  bluetooth.Device
	char    bluetooth.DeviceCharacteristic
	name    string
	address string
}

func (p *peripheral) Close() error {
	// A nil callback tears down the notification session.
	unsubErr := p.char.EnableNotifications(nil)
	if err := p.device.Disconnect(); err != nil {
		return errors.Join(unsubErr, fmt.Errorf("blenotify: disconnecting: %w", err))
	}
	return unsubErr
}

func (p *peripheral) DeviceName() string { return p.name }

func (p *peripheral) Address() string { return p.address }
