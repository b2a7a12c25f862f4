// internal/port/factory.go
package port

import (
	"fmt"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"glider-device-service/internal/model"
)

// ValidBaudRates lists the rates instruments are configured with
var ValidBaudRates = []uint{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// allow tests to override port detection
var listDetailedPorts = enumerator.GetDetailedPortsList

// Open creates the port described by cfg, delivering inbound data to handler
func Open(cfg model.DeviceConfig, handler Handler, logger *zap.Logger) (Port, error) {
	switch cfg.PortType {
	case model.PortTypeSerial, model.PortTypeRFCOMM:
		return openTTY(cfg.Path, cfg, handler, logger)
	case model.PortTypeAuto:
		path, err := DetectAutoPort()
		if err != nil {
			return nil, err
		}
		logger.Info("Auto detected serial port", zap.String("path", path))
		return openTTY(path, cfg, handler, logger)
	case model.PortTypeTCPListener:
		return OpenTCPListener(cfg.TCPPort, handler, logger)
	case model.PortTypeIOIOUART:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPort, cfg.PortType)
	default:
		return nil, fmt.Errorf("port type %s has no port", cfg.PortType)
	}
}

func openTTY(path string, cfg model.DeviceConfig, handler Handler, logger *zap.Logger) (Port, error) {
	if path == "" {
		return nil, fmt.Errorf("no device path for %s port", cfg.PortType)
	}

	tty, err := OpenSerial(path, cfg.BaudRate, handler, logger)
	if err != nil {
		return nil, err
	}
	if !cfg.K6Bt {
		return tty, nil
	}

	k6bt, err := NewK6BtPort(tty, tty.GetBaudrate())
	if err != nil {
		tty.Close()
		return nil, err
	}
	return k6bt, nil
}

// DetectAutoPort returns the first USB serial adapter found
func DetectAutoPort() (string, error) {
	ports, err := listDetailedPorts()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	for _, p := range ports {
		if p.IsUSB {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("no USB serial adapter found")
}

// Validate checks that cfg describes a port this host can open
func Validate(cfg model.DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	switch cfg.PortType {
	case model.PortTypeSerial, model.PortTypeRFCOMM, model.PortTypeAuto:
		if cfg.BaudRate != 0 && !isValidBaudRate(cfg.BaudRate) {
			return fmt.Errorf("invalid baud rate: %d", cfg.BaudRate)
		}
		if cfg.BulkBaudRate != 0 && !isValidBaudRate(cfg.BulkBaudRate) {
			return fmt.Errorf("invalid bulk baud rate: %d", cfg.BulkBaudRate)
		}
		if cfg.K6Bt && cfg.BaudRate != 0 {
			if _, ok := k6btBaudCode(cfg.BaudRate); !ok {
				return fmt.Errorf("baud rate %d not supported by K6-Bt", cfg.BaudRate)
			}
		}
	case model.PortTypeIOIOUART:
		return fmt.Errorf("%w: %s", ErrUnsupportedPort, cfg.PortType)
	}
	return nil
}

func isValidBaudRate(rate uint) bool {
	for _, valid := range ValidBaudRates {
		if rate == valid {
			return true
		}
	}
	return false
}
