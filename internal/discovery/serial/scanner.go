// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"strconv"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"glider-device-service/internal/discovery"
	"glider-device-service/internal/model"
)

// Scanner lists the serial ports of the host
type Scanner struct {
	logger *zap.Logger
	list   func() ([]*enumerator.PortDetails, error)
}

func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{
		logger: logger.With(zap.String("scanner", "serial")),
		list:   enumerator.GetDetailedPortsList,
	}
}

func (s *Scanner) Type() string {
	return "serial"
}

func (s *Scanner) IsAvailable() bool {
	return true
}

func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	details, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	ports := make([]*discovery.DiscoveredPort, 0, len(details))
	for _, d := range details {
		if err := ctx.Err(); err != nil {
			return ports, err
		}
		ports = append(ports, describe(d))
	}

	s.logger.Debug("Serial ports listed", zap.Int("count", len(ports)))
	return ports, nil
}

func describe(d *enumerator.PortDetails) *discovery.DiscoveredPort {
	p := &discovery.DiscoveredPort{
		Source:      "serial",
		PortType:    model.PortTypeSerial,
		Path:        d.Name,
		Description: d.Name,
	}
	if !d.IsUSB {
		return p
	}

	p.VendorID = d.VID
	p.ProductID = d.PID
	p.SerialNumber = d.SerialNumber
	if d.Product != "" {
		p.Description = d.Product
	}

	vid, vidErr := strconv.ParseUint(d.VID, 16, 16)
	pid, pidErr := strconv.ParseUint(d.PID, 16, 16)
	if vidErr == nil && pidErr == nil {
		if adapter, ok := discovery.LookupAdapter(uint16(vid), uint16(pid)); ok {
			p.Description = adapter.Name
			p.SuggestedDriver = adapter.Driver
		}
	}
	return p
}
