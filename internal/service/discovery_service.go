// internal/service/discovery_service.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"glider-device-service/internal/device"
	"glider-device-service/internal/discovery"
	"glider-device-service/internal/model"
)

const (
	defaultScanTimeout = 10 * time.Second
	defaultBaudRate    = 4800
)

// DiscoveryService lists the ports instruments can be attached to
type DiscoveryService struct {
	scanners *discovery.ScannerManager
	manager  *device.Manager
	timeout  time.Duration
	logger   *zap.Logger
}

func NewDiscoveryService(scanners *discovery.ScannerManager, manager *device.Manager, logger *zap.Logger) *DiscoveryService {
	return &DiscoveryService{
		scanners: scanners,
		manager:  manager,
		timeout:  defaultScanTimeout,
		logger:   logger.With(zap.String("component", "discovery_service")),
	}
}

// PortCandidate is a discovered port with a suggested slot configuration
type PortCandidate struct {
	*discovery.DiscoveredPort
	Suggested *model.DeviceConfig `json:"suggested_config,omitempty"`

	// UsedBy is the slot already configured for the port, or -1
	UsedBy int `json:"used_by"`
}

// Scan runs one scanner type, or all of them when scannerType is empty
func (s *DiscoveryService) Scan(ctx context.Context, scannerType string) ([]PortCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	var ports []*discovery.DiscoveredPort
	if scannerType == "" {
		ports = s.scanners.ScanAll(ctx)
	} else {
		var err error
		if ports, err = s.scanners.ScanByType(ctx, scannerType); err != nil {
			return nil, err
		}
	}

	configs := s.manager.Configs()
	candidates := make([]PortCandidate, len(ports))
	for i, p := range ports {
		candidates[i] = PortCandidate{DiscoveredPort: p, UsedBy: -1}
		cfg, ok := p.Config(defaultBaudRate)
		if !ok {
			continue
		}
		candidates[i].Suggested = &cfg
		for index, used := range configs {
			if used.IsConfigured() && cfg.Overlaps(used) {
				candidates[i].UsedBy = index
				break
			}
		}
	}

	s.logger.Info("Port discovery completed",
		zap.String("scanner", scannerType),
		zap.Int("ports_found", len(candidates)),
		zap.Duration("duration", time.Since(started)))
	return candidates, nil
}

func (s *DiscoveryService) AvailableScanners() []string {
	return s.scanners.AvailableScanners()
}
