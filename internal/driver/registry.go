// internal/driver/registry.go
package driver

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/port"
	"glider-device-service/pkg/driver"
)

// Flags describe what a driver can do
type Flags uint

const (
	// FlagDeclare means the driver can declare tasks
	FlagDeclare Flags = 1 << iota
	// FlagLogger means the driver can list and download flights
	FlagLogger
	// FlagNMEAOut means received NMEA from other devices is forwarded to it
	FlagNMEAOut
	// FlagManageable means the instrument has a management dialog
	FlagManageable
	// FlagBulkBaudRate means downloads switch to the configured bulk baud rate
	FlagBulkBaudRate
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

func (f Flags) String() string {
	names := []string{}
	for _, entry := range []struct {
		flag Flags
		name string
	}{
		{FlagDeclare, "declare"},
		{FlagLogger, "logger"},
		{FlagNMEAOut, "nmea_out"},
		{FlagManageable, "manageable"},
		{FlagBulkBaudRate, "bulk_baud_rate"},
	} {
		if f.Has(entry.flag) {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, ",")
}

// Factory creates a device session on an open port
type Factory func(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driver.Device

// Register describes one driver
type Register struct {
	Name         string
	DisplayName  string
	Flags        Flags
	CreateOnPort Factory
}

func (r *Register) CanDeclare() bool       { return r.Flags.Has(FlagDeclare) }
func (r *Register) IsLogger() bool         { return r.Flags.Has(FlagLogger) }
func (r *Register) IsNMEAOut() bool        { return r.Flags.Has(FlagNMEAOut) }
func (r *Register) IsManageable() bool     { return r.Flags.Has(FlagManageable) }
func (r *Register) UsesBulkBaudRate() bool { return r.Flags.Has(FlagBulkBaudRate) }

// Info is the JSON view of a Register
type Info struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Declare      bool   `json:"declare"`
	Logger       bool   `json:"logger"`
	NMEAOut      bool   `json:"nmea_out"`
	Manageable   bool   `json:"manageable"`
	BulkBaudRate bool   `json:"bulk_baud_rate"`
}

// Info returns the JSON view
func (r *Register) Info() Info {
	return Info{
		Name:         r.Name,
		DisplayName:  r.DisplayName,
		Declare:      r.CanDeclare(),
		Logger:       r.IsLogger(),
		NMEAOut:      r.IsNMEAOut(),
		Manageable:   r.IsManageable(),
		BulkBaudRate: r.UsesBulkBaudRate(),
	}
}

// Create starts a driver session on p. Drivers without bulk transfers
// are created with the bulk baud rate cleared, so they stay at BaudRate.
func (r *Register) Create(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driver.Device {
	if !r.UsesBulkBaudRate() {
		cfg.BulkBaudRate = 0
	}
	return r.CreateOnPort(p, cfg, logger)
}

// Registry is the driver dispatch table. It is filled at startup and
// read-only afterwards.
type Registry struct {
	mu      sync.RWMutex
	drivers []*Register
	byName  map[string]*Register
	logger  *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		byName: make(map[string]*Register),
		logger: logger,
	}
}

// Register adds a driver; a second registration of the same name replaces the first
func (r *Registry) Register(reg *Register) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[reg.Name]; exists {
		for i, existing := range r.drivers {
			if existing.Name == reg.Name {
				r.drivers[i] = reg
			}
		}
	} else {
		r.drivers = append(r.drivers, reg)
	}
	r.byName[reg.Name] = reg

	r.logger.Debug("Driver registered",
		zap.String("name", reg.Name),
		zap.String("display_name", reg.DisplayName),
		zap.Stringer("flags", reg.Flags),
	)
}

// FindByName looks a driver up by its exact name
func (r *Registry) FindByName(name string) (*Register, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.byName[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", driver.ErrNoSuchDriver, name)
	}
	return reg, nil
}

// List returns all drivers in registration order
func (r *Registry) List() []*Register {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Register, len(r.drivers))
	copy(list, r.drivers)
	return list
}

// Loggers returns the drivers able to download flights
func (r *Registry) Loggers() []*Register {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var loggers []*Register
	for _, reg := range r.drivers {
		if reg.IsLogger() {
			loggers = append(loggers, reg)
		}
	}
	return loggers
}
