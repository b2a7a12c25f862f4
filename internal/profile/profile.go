// internal/profile/profile.go
package profile

import (
	"context"
	"fmt"
	"strconv"

	"glider-device-service/internal/model"
	"glider-device-service/internal/repository"
)

// Key suffixes of a device slot. Slot 0 is stored as "Port1<suffix>".
const (
	keyType           = "Type"
	keyPath           = "Path"
	keyBluetoothMAC   = "BluetoothMAC"
	keyIOIOUART       = "IOIOUART"
	keyTCPPort        = "TCPPort"
	keyBaudRate       = "BaudRate"
	keyBulkBaudRate   = "BulkBaudRate"
	keyDriver         = "Driver"
	keyIgnoreChecksum = "IgnoreChecksum"
	keyK6Bt           = "K6Bt"
)

var slotKeys = []string{
	keyType, keyPath, keyBluetoothMAC, keyIOIOUART, keyTCPPort,
	keyBaudRate, keyBulkBaudRate, keyDriver, keyIgnoreChecksum, keyK6Bt,
}

// Key returns the profile key of a slot setting
func Key(index int, suffix string) string {
	return fmt.Sprintf("Port%d%s", index+1, suffix)
}

type reader struct {
	ctx   context.Context
	repo  repository.ProfileRepository
	index int
	err   error
}

func (r *reader) get(suffix string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	value, ok, err := r.repo.Get(r.ctx, Key(r.index, suffix))
	if err != nil {
		r.err = err
		return "", false
	}
	return value, ok
}

func (r *reader) string(suffix string, dst *string) {
	if value, ok := r.get(suffix); ok {
		*dst = value
	}
}

func (r *reader) int(suffix string, dst *int) {
	value, ok := r.get(suffix)
	if !ok {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.err = fmt.Errorf("profile key %s: %w", Key(r.index, suffix), err)
		return
	}
	*dst = n
}

func (r *reader) uint(suffix string, dst *uint) {
	value, ok := r.get(suffix)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		r.err = fmt.Errorf("profile key %s: %w", Key(r.index, suffix), err)
		return
	}
	*dst = uint(n)
}

func (r *reader) bool(suffix string, dst *bool) {
	value, ok := r.get(suffix)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.err = fmt.Errorf("profile key %s: %w", Key(r.index, suffix), err)
		return
	}
	*dst = b
}

// LoadDeviceConfig reads the configuration of slot index. found is false
// when the profile has no port type for the slot.
func LoadDeviceConfig(ctx context.Context, repo repository.ProfileRepository, index int) (cfg model.DeviceConfig, found bool, err error) {
	r := &reader{ctx: ctx, repo: repo, index: index}

	typeName, found := r.get(keyType)
	if r.err != nil {
		return cfg, false, r.err
	}
	if !found {
		cfg.Clear()
		return cfg, false, nil
	}

	cfg.PortType, err = model.ParsePortType(typeName)
	if err != nil {
		return cfg, true, fmt.Errorf("profile key %s: %w", Key(index, keyType), err)
	}

	r.string(keyPath, &cfg.Path)
	r.string(keyBluetoothMAC, &cfg.BluetoothMAC)
	r.int(keyIOIOUART, &cfg.IOIOUARTID)
	r.int(keyTCPPort, &cfg.TCPPort)
	r.uint(keyBaudRate, &cfg.BaudRate)
	r.uint(keyBulkBaudRate, &cfg.BulkBaudRate)
	r.string(keyDriver, &cfg.DriverName)
	r.bool(keyIgnoreChecksum, &cfg.IgnoreChecksum)
	r.bool(keyK6Bt, &cfg.K6Bt)
	return cfg, true, r.err
}

// SaveDeviceConfig writes the configuration of slot index. Empty and zero
// values are removed from the profile.
func SaveDeviceConfig(ctx context.Context, repo repository.ProfileRepository, index int, cfg model.DeviceConfig) error {
	portType := cfg.PortType
	if portType == "" {
		portType = model.PortTypeDisabled
	}

	values := map[string]string{
		keyType:           string(portType),
		keyPath:           cfg.Path,
		keyBluetoothMAC:   cfg.BluetoothMAC,
		keyDriver:         cfg.DriverName,
		keyIgnoreChecksum: strconv.FormatBool(cfg.IgnoreChecksum),
		keyK6Bt:           strconv.FormatBool(cfg.K6Bt),
	}
	if cfg.IOIOUARTID != 0 {
		values[keyIOIOUART] = strconv.Itoa(cfg.IOIOUARTID)
	}
	if cfg.TCPPort != 0 {
		values[keyTCPPort] = strconv.Itoa(cfg.TCPPort)
	}
	if cfg.BaudRate != 0 {
		values[keyBaudRate] = strconv.FormatUint(uint64(cfg.BaudRate), 10)
	}
	if cfg.BulkBaudRate != 0 {
		values[keyBulkBaudRate] = strconv.FormatUint(uint64(cfg.BulkBaudRate), 10)
	}

	for _, suffix := range slotKeys {
		key := Key(index, suffix)
		value := values[suffix]
		var err error
		if value == "" {
			err = repo.Delete(ctx, key)
		} else {
			err = repo.Set(ctx, key, value)
		}
		if err != nil {
			return fmt.Errorf("failed to save slot %d: %w", index, err)
		}
	}
	return nil
}

// LoadDeviceConfigs reads count slots. Slots missing from the profile take
// their value from seed.
func LoadDeviceConfigs(ctx context.Context, repo repository.ProfileRepository, count int, seed []model.DeviceConfig) ([]model.DeviceConfig, error) {
	configs := make([]model.DeviceConfig, count)
	for i := range configs {
		cfg, found, err := LoadDeviceConfig(ctx, repo, i)
		if err != nil {
			return nil, err
		}
		if !found && i < len(seed) {
			cfg = seed[i]
		}
		configs[i] = cfg
	}
	return configs, nil
}
