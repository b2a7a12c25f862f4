// internal/driver/flarm/flarm.go
package flarm

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port"
	"glider-device-service/pkg/driver"
)

// Mode is the protocol the FLARM is believed to speak
type Mode int

const (
	ModeUnknown Mode = iota
	ModeNMEA
	ModeText
	ModeBinary
)

func (m Mode) String() string {
	switch m {
	case ModeNMEA:
		return "nmea"
	case ModeText:
		return "text"
	case ModeBinary:
		return "binary"
	}
	return "unknown"
}

const (
	defaultConfigTimeout = 2 * time.Second
	defaultResetDelay    = 500 * time.Millisecond
)

// Device talks to a FLARM collision avoidance unit
type Device struct {
	driver.AbstractDevice

	port   port.Port
	logger *zap.Logger

	// configTimeout bounds the wait for a PFLAC answer
	configTimeout time.Duration
	// resetDelay is given to the unit to leave binary mode
	resetDelay time.Duration

	mu       sync.Mutex
	mode     Mode
	sequence uint16
}

// New creates a FLARM session on p
func New(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driver.Device {
	return &Device{
		port:          p,
		logger:        logger.With(zap.String("driver", "FLARM")),
		configTimeout: defaultConfigTimeout,
		resetDelay:    defaultResetDelay,
	}
}

// Mode returns the current protocol mode
func (d *Device) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

func (d *Device) setMode(mode Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode != mode {
		d.logger.Debug("FLARM mode changed",
			zap.Stringer("from", d.mode),
			zap.Stringer("to", mode),
		)
	}
	d.mode = mode
}

func (d *Device) nextSequence() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sequence++
	return d.sequence
}

func (d *Device) LinkTimeout() {
	d.setMode(ModeUnknown)
}

func (d *Device) EnableNMEA(env operation.Env) error {
	switch d.Mode() {
	case ModeNMEA:
		return nil
	case ModeUnknown, ModeBinary:
		if err := d.binaryReset(env); err != nil {
			return err
		}
	}
	d.setMode(ModeNMEA)
	return nil
}

// TextMode makes sure the unit accepts PFLAC commands
func (d *Device) TextMode(env operation.Env) error {
	switch d.Mode() {
	case ModeNMEA, ModeText:
		return nil
	}

	if err := d.binaryReset(env); err != nil {
		d.setMode(ModeUnknown)
		return err
	}
	d.setMode(ModeText)
	return nil
}

// binaryReset leaves binary mode; a unit already in text mode ignores it
func (d *Device) binaryReset(env operation.Env) error {
	if err := d.sendFrame(frameTypeReset, nil); err != nil {
		return fmt.Errorf("failed to send reset frame: %w", err)
	}
	if !env.Sleep(d.resetDelay) {
		return operation.ErrCancelled
	}
	d.port.Flush()
	return nil
}

// SetConfig writes one PFLAC setting and waits for its acknowledgement
func (d *Device) SetConfig(key, value string, env operation.Env) error {
	if err := port.WriteNMEA(d.port, fmt.Sprintf("PFLAC,S,%s,%s", key, value)); err != nil {
		return err
	}

	answer := fmt.Sprintf("PFLAC,A,%s,%s", key, value)
	if !port.ExpectString(d.port, answer, env, d.configTimeout) {
		if env.IsCancelled() {
			return operation.ErrCancelled
		}
		return fmt.Errorf("no acknowledgement for %s: %w", key, port.ErrTimeout)
	}
	return nil
}

// Restart reboots the unit, which activates a new declaration
func (d *Device) Restart() error {
	return port.WriteNMEA(d.port, "PFLAR,0")
}

func (d *Device) PutVolume(volume uint, env operation.Env) error {
	if volume > 3 {
		volume = 3
	}
	if err := d.TextMode(env); err != nil {
		return err
	}
	return d.SetConfig("AUDIOVOLUME", fmt.Sprintf("%d", volume), env)
}
