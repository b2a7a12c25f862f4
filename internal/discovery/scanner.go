// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
)

// Scanner finds ports an instrument may be attached to
type Scanner interface {
	Scan(ctx context.Context) ([]*DiscoveredPort, error)
	Type() string
	IsAvailable() bool
}

// DiscoveredPort is a candidate for a device slot configuration
type DiscoveredPort struct {
	Source       string         `json:"source"`
	PortType     model.PortType `json:"port_type,omitempty"`
	Path         string         `json:"path,omitempty"`
	Description  string         `json:"description"`
	VendorID     string         `json:"vendor_id,omitempty"`
	ProductID    string         `json:"product_id,omitempty"`
	SerialNumber string         `json:"serial_number,omitempty"`
	Location     string         `json:"location,omitempty"`

	// SuggestedDriver is set when the adapter identifies the instrument
	SuggestedDriver string `json:"suggested_driver,omitempty"`
}

// Config suggests a slot configuration for the port, or false if the port
// cannot be opened directly
func (p *DiscoveredPort) Config(baudRate uint) (model.DeviceConfig, bool) {
	if p.PortType == "" || p.Path == "" {
		return model.DeviceConfig{}, false
	}
	driverName := p.SuggestedDriver
	if driverName == "" {
		driverName = "Generic"
	}
	return model.DeviceConfig{
		PortType:   p.PortType,
		Path:       p.Path,
		BaudRate:   baudRate,
		DriverName: driverName,
	}, true
}

// ScannerManager runs the registered scanners
type ScannerManager struct {
	mu       sync.RWMutex
	scanners map[string]Scanner
	logger   *zap.Logger
}

func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]Scanner),
		logger:   logger.With(zap.String("component", "discovery")),
	}
}

func (sm *ScannerManager) RegisterScanner(scanner Scanner) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.scanners[scanner.Type()] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scanner.Type()))
}

func (sm *ScannerManager) sortedScanners() []Scanner {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	list := make([]Scanner, 0, len(sm.scanners))
	for _, s := range sm.scanners {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Type() < list[j].Type() })
	return list
}

// ScanAll runs every available scanner. A failing scanner is logged and
// skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) []*DiscoveredPort {
	var all []*DiscoveredPort
	for _, scanner := range sm.sortedScanners() {
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scanner.Type()))
			continue
		}

		ports, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scanner.Type()), zap.Error(err))
			continue
		}
		all = append(all, ports...)
		sm.logger.Info("Scanner completed",
			zap.String("type", scanner.Type()),
			zap.Int("ports_found", len(ports)))
	}
	return all
}

func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredPort, error) {
	sm.mu.RLock()
	scanner, ok := sm.scanners[scannerType]
	sm.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}
	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}
	return scanner.Scan(ctx)
}

// AvailableScanners returns the types of the usable scanners
func (sm *ScannerManager) AvailableScanners() []string {
	var available []string
	for _, scanner := range sm.sortedScanners() {
		if scanner.IsAvailable() {
			available = append(available, scanner.Type())
		}
	}
	return available
}
