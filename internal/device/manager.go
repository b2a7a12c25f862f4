// internal/device/manager.go
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"glider-device-service/internal/blackboard"
	"glider-device-service/internal/driver"
	"glider-device-service/internal/driver/vega"
	"glider-device-service/internal/model"
	"glider-device-service/internal/operation"
	driverapi "glider-device-service/pkg/driver"
)

// DefaultTickerInterval drives OnSysTicker and AutoReopen
const DefaultTickerInterval = 500 * time.Millisecond

var (
	ErrNoSuchDevice = errors.New("no such device slot")
	ErrOverlap      = errors.New("port is already used by another device")
)

// Manager owns one Descriptor per device slot
type Manager struct {
	board          *blackboard.Blackboard
	logger         *zap.Logger
	tickerInterval time.Duration

	// mu serializes startup, shutdown and reconfiguration
	mu          sync.Mutex
	descriptors []*Descriptor
}

// NewManager creates count closed descriptors
func NewManager(count int, registry *driver.Registry, board *blackboard.Blackboard,
	publisher model.EventPublisher, logger *zap.Logger, tickerInterval time.Duration, opts Options) *Manager {
	if tickerInterval <= 0 {
		tickerInterval = DefaultTickerInterval
	}

	logger = logger.With(zap.String("component", "device_manager"))
	m := &Manager{
		board:          board,
		logger:         logger,
		tickerInterval: tickerInterval,
		descriptors:    make([]*Descriptor, count),
	}
	for i := range m.descriptors {
		m.descriptors[i] = NewDescriptor(i, registry, board, publisher, logger, opts)
	}
	return m
}

func (m *Manager) Len() int {
	return len(m.descriptors)
}

// Descriptors returns all slots in index order
func (m *Manager) Descriptors() []*Descriptor {
	list := make([]*Descriptor, len(m.descriptors))
	copy(list, m.descriptors)
	return list
}

func (m *Manager) Descriptor(index int) (*Descriptor, error) {
	if index < 0 || index >= len(m.descriptors) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchDevice, index)
	}
	return m.descriptors[index], nil
}

// Configs returns the configuration of every slot
func (m *Manager) Configs() []model.DeviceConfig {
	configs := make([]model.DeviceConfig, len(m.descriptors))
	for i, d := range m.descriptors {
		configs[i] = d.Config()
	}
	return configs
}

// Startup applies configs and opens every usable slot. Slots this host
// cannot open and slots claiming a port an earlier slot already uses are
// cleared.
func (m *Manager) Startup(ctx context.Context, configs []model.DeviceConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.startup(ctx, configs)
}

func (m *Manager) startup(ctx context.Context, configs []model.DeviceConfig) {
	effective := make([]model.DeviceConfig, len(m.descriptors))
	for i := range effective {
		effective[i].Clear()
		if i < len(configs) {
			effective[i] = configs[i]
		}
	}

	for i := range effective {
		cfg := &effective[i]
		if !cfg.IsConfigured() {
			continue
		}

		if !cfg.IsAvailable() {
			m.logger.Warn("Port not available on this host, slot disabled",
				zap.Int("device_index", i), zap.String("port", cfg.String()))
			cfg.Clear()
			continue
		}

		for j := 0; j < i; j++ {
			if effective[j].IsConfigured() && cfg.Overlaps(effective[j]) {
				m.logger.Warn("Port already used by another device, slot disabled",
					zap.Int("device_index", i),
					zap.Int("used_by", j),
					zap.String("port", cfg.String()))
				cfg.Clear()
				break
			}
		}
	}

	opened := 0
	for i, d := range m.descriptors {
		d.SetConfig(effective[i])
		if !effective[i].IsConfigured() {
			continue
		}
		if _, err := d.Open(ctx); err != nil {
			m.logger.Warn("Device not opened", zap.Int("device_index", i), zap.Error(err))
			continue
		}
		opened++
	}

	m.refreshPipeTo()
	m.logger.Info("Devices started", zap.Int("slots", len(m.descriptors)), zap.Int("opening", opened))
}

// refreshPipeTo routes the NMEA received by every device to the first
// NMEA output device
func (m *Manager) refreshPipeTo() {
	var target *Descriptor
	for _, d := range m.descriptors {
		if d.IsNMEAOut() {
			target = d
			break
		}
	}

	for _, d := range m.descriptors {
		if d == target {
			d.SetPipeTo(nil)
		} else {
			d.SetPipeTo(target)
		}
	}

	if target != nil {
		m.logger.Info("Forwarding NMEA", zap.Int("device_index", target.Index()))
	}
}

// Shutdown closes every device
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdown()
}

func (m *Manager) shutdown() {
	var wg sync.WaitGroup
	for _, d := range m.descriptors {
		wg.Add(1)
		go func(d *Descriptor) {
			defer wg.Done()
			d.Close()
		}(d)
	}
	wg.Wait()
}

// Restart closes all devices and opens them again with their current
// configuration. Nothing is restarted while any device is borrowed.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.descriptors {
		if d.IsBorrowed() {
			return fmt.Errorf("device %d: %w", d.Index(), ErrOccupied)
		}
	}

	configs := m.Configs()
	m.shutdown()
	m.startup(ctx, configs)
	return nil
}

// Reconfigure replaces the configuration of one slot and reopens it
func (m *Manager) Reconfigure(ctx context.Context, index int, cfg model.DeviceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.Descriptor(index)
	if err != nil {
		return err
	}

	if cfg.IsConfigured() {
		if err := cfg.Validate(); err != nil {
			return err
		}
		for i, other := range m.descriptors {
			if i == index {
				continue
			}
			otherCfg := other.Config()
			if otherCfg.IsConfigured() && cfg.Overlaps(otherCfg) {
				return fmt.Errorf("%w: slot %d", ErrOverlap, i)
			}
		}
	}

	if err := d.CloseIdle(); err != nil {
		return fmt.Errorf("device %d: %w", index, err)
	}
	d.SetConfig(cfg)
	defer m.refreshPipeTo()

	if !cfg.IsConfigured() {
		return nil
	}
	if !cfg.IsAvailable() {
		return fmt.Errorf("port %s is not available on this host", cfg)
	}
	_, err = d.Open(ctx)
	return err
}

// Run processes received data and runs the periodic device housekeeping
// until ctx is done
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, d := range m.descriptors {
		wg.Add(1)
		go func(d *Descriptor) {
			defer wg.Done()
			d.Run(ctx)
		}(d)
	}

	ticker := time.NewTicker(m.tickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	derived := m.board.Derived()
	for _, d := range m.descriptors {
		d.OnSysTicker(derived)
		d.AutoReopen(ctx)
	}
}

// broadcast applies put to every device that can take it. Devices that
// are closed, busy or do not support the setting are skipped.
func (m *Manager) broadcast(ctx context.Context, name string, put func(d *Descriptor, env operation.Env) error) error {
	env := operation.NewContextEnv(ctx, m.logger, nil)

	var errs []error
	for _, d := range m.descriptors {
		err := put(d, env)
		switch {
		case err == nil,
			errors.Is(err, ErrNotOpen),
			errors.Is(err, ErrOccupied),
			errors.Is(err, driverapi.ErrNotSupported):
			continue
		}
		m.logger.Warn("Failed to send setting",
			zap.String("setting", name), zap.Int("device_index", d.Index()), zap.Error(err))
		errs = append(errs, fmt.Errorf("device %d: %w", d.Index(), err))
	}
	return errors.Join(errs...)
}

func (m *Manager) PutMacCready(ctx context.Context, value float64) error {
	return m.broadcast(ctx, "mac_cready", func(d *Descriptor, env operation.Env) error {
		return d.PutMacCready(value, env)
	})
}

func (m *Manager) PutBugs(ctx context.Context, value float64) error {
	return m.broadcast(ctx, "bugs", func(d *Descriptor, env operation.Env) error {
		return d.PutBugs(value, env)
	})
}

func (m *Manager) PutBallast(ctx context.Context, fraction, overload float64) error {
	return m.broadcast(ctx, "ballast", func(d *Descriptor, env operation.Env) error {
		return d.PutBallast(fraction, overload, env)
	})
}

func (m *Manager) PutQNH(ctx context.Context, value float64) error {
	return m.broadcast(ctx, "qnh", func(d *Descriptor, env operation.Env) error {
		return d.PutQNH(value, env)
	})
}

func (m *Manager) PutVolume(ctx context.Context, value uint) error {
	return m.broadcast(ctx, "volume", func(d *Descriptor, env operation.Env) error {
		return d.PutVolume(value, env)
	})
}

func (m *Manager) PutActiveFrequency(ctx context.Context, freq model.RadioFrequency, name string) error {
	return m.broadcast(ctx, "active_frequency", func(d *Descriptor, env operation.Env) error {
		return d.PutActiveFrequency(freq, name, env)
	})
}

func (m *Manager) PutStandbyFrequency(ctx context.Context, freq model.RadioFrequency, name string) error {
	return m.broadcast(ctx, "standby_frequency", func(d *Descriptor, env operation.Env) error {
		return d.PutStandbyFrequency(freq, name, env)
	})
}

// FindVega returns the first open Vega session
func (m *Manager) FindVega() (*vega.Device, int, bool) {
	for _, d := range m.descriptors {
		if v, ok := d.Device().(*vega.Device); ok {
			return v, d.Index(), true
		}
	}
	return nil, -1, false
}

// Statuses returns the status of every slot
func (m *Manager) Statuses() []Status {
	statuses := make([]Status, len(m.descriptors))
	for i, d := range m.descriptors {
		statuses[i] = d.Status()
	}
	return statuses
}
