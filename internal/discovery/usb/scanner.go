// internal/discovery/usb/scanner.go
package usb

import (
	"context"
	"fmt"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"glider-device-service/internal/discovery"
)

// Scanner reports USB devices that look like instrument adapters. It
// reads device descriptors only and never claims an interface.
type Scanner struct {
	logger *zap.Logger
}

func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{logger: logger.With(zap.String("scanner", "usb"))}
}

func (s *Scanner) Type() string {
	return "usb"
}

// IsAvailable reports whether libusb can be initialized
func (s *Scanner) IsAvailable() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("libusb not usable", zap.Any("reason", r))
			ok = false
		}
	}()

	ctx := gousb.NewContext()
	ctx.Close()
	return true
}

func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	var found []*discovery.DiscoveredPort
	_, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if ctx.Err() != nil {
			return false
		}
		if p := identify(desc); p != nil {
			found = append(found, p)
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return found, err
	}

	s.logger.Debug("USB scan completed", zap.Int("adapters_found", len(found)))
	return found, nil
}

// identify describes known adapters and CDC serial devices and ignores
// everything else
func identify(desc *gousb.DeviceDesc) *discovery.DiscoveredPort {
	p := &discovery.DiscoveredPort{
		Source:    "usb",
		VendorID:  fmt.Sprintf("%04x", uint16(desc.Vendor)),
		ProductID: fmt.Sprintf("%04x", uint16(desc.Product)),
		Location:  fmt.Sprintf("usb-bus%d-addr%d", desc.Bus, desc.Address),
	}

	if adapter, ok := discovery.LookupAdapter(uint16(desc.Vendor), uint16(desc.Product)); ok {
		p.Description = adapter.Name
		p.SuggestedDriver = adapter.Driver
		return p
	}

	if desc.Class == gousb.ClassComm {
		p.Description = "USB CDC serial device"
		return p
	}
	return nil
}
