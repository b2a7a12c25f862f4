// internal/service/device_service.go
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"glider-device-service/internal/blackboard"
	"glider-device-service/internal/config"
	"glider-device-service/internal/device"
	"glider-device-service/internal/driver"
	"glider-device-service/internal/model"
	"glider-device-service/internal/profile"
	"glider-device-service/internal/repository"
	"glider-device-service/internal/sensors"
	"glider-device-service/internal/utils"
)

var (
	ErrNotInternal = errors.New("device slot is not an internal sensor slot")
	ErrNoVega      = errors.New("no Vega variometer connected")
)

// DeviceService manages the device slots, their persisted configuration
// and the settings sent to the connected instruments
type DeviceService struct {
	manager   *device.Manager
	board     *blackboard.Blackboard
	registry  *driver.Registry
	profile   repository.ProfileRepository
	config    *config.Config
	publisher model.EventPublisher
	logger    *utils.ServiceLogger
}

func NewDeviceService(
	manager *device.Manager,
	board *blackboard.Blackboard,
	registry *driver.Registry,
	profileRepo repository.ProfileRepository,
	config *config.Config,
	publisher model.EventPublisher,
	logger *zap.Logger,
) *DeviceService {
	return &DeviceService{
		manager:   manager,
		board:     board,
		registry:  registry,
		profile:   profileRepo,
		config:    config,
		publisher: publisher,
		logger:    utils.NewServiceLogger(logger, "device-service"),
	}
}

// Start loads the slot configuration from the profile, seeded by the
// config file, and opens every slot
func (s *DeviceService) Start(ctx context.Context) error {
	configs, err := profile.LoadDeviceConfigs(ctx, s.profile, s.manager.Len(), s.config.Device.Slots)
	if err != nil {
		return fmt.Errorf("failed to load device configuration: %w", err)
	}

	s.manager.Startup(ctx, configs)
	return nil
}

func (s *DeviceService) Statuses() []device.Status {
	return s.manager.Statuses()
}

func (s *DeviceService) Status(index int) (device.Status, error) {
	d, err := s.manager.Descriptor(index)
	if err != nil {
		return device.Status{}, err
	}
	return d.Status(), nil
}

// UpdateConfig applies a new configuration to slot index, reopens the slot
// and stores the configuration in the profile. applied is true when the
// configuration was stored, even if opening the device failed.
func (s *DeviceService) UpdateConfig(ctx context.Context, index int, cfg model.DeviceConfig) (status device.Status, applied bool, err error) {
	d, err := s.manager.Descriptor(index)
	if err != nil {
		return device.Status{}, false, err
	}

	if cfg.PortType, err = model.ParsePortType(string(cfg.PortType)); err != nil {
		return device.Status{}, false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if cfg.IsConfigured() {
		if err := cfg.Validate(); err != nil {
			return device.Status{}, false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	old := d.Config()
	reconfigureErr := s.manager.Reconfigure(ctx, index, cfg)
	if d.Config() != cfg {
		return d.Status(), false, reconfigureErr
	}

	if err := profile.SaveDeviceConfig(ctx, s.profile, index, cfg); err != nil {
		return d.Status(), false, err
	}

	s.logger.LogDeviceConfiguration(index, old, cfg)
	if s.publisher != nil {
		s.publisher.Publish(model.NewDeviceEvent(model.EventConfigUpdate, index, "device_service",
			model.JSONObject{"config": cfg}))
	}
	return d.Status(), true, reconfigureErr
}

// Reopen closes slot index and opens it again
func (s *DeviceService) Reopen(ctx context.Context, index int) error {
	d, err := s.manager.Descriptor(index)
	if err != nil {
		return err
	}
	if !d.IsConfigured() {
		return fmt.Errorf("%w: device %d is disabled", ErrInvalidRequest, index)
	}
	if d.IsBorrowed() {
		return fmt.Errorf("device %d: %w", index, device.ErrOccupied)
	}

	_, err = d.Reopen(ctx)
	return err
}

// Close closes slot index until the next reopen. A device borrowed by a
// running operation is not closed; cancel the operation instead.
func (s *DeviceService) Close(index int) error {
	d, err := s.manager.Descriptor(index)
	if err != nil {
		return err
	}
	if err := d.CloseIdle(); err != nil {
		return fmt.Errorf("device %d: %w", index, err)
	}
	return nil
}

// RestartAll closes and reopens every slot
func (s *DeviceService) RestartAll(ctx context.Context) error {
	return s.manager.Restart(ctx)
}

// BallastSetting is the water ballast to send
type BallastSetting struct {
	Fraction float64 `json:"fraction"`
	Overload float64 `json:"overload"`
}

// FrequencySetting is a radio frequency to send
type FrequencySetting struct {
	KHz  model.RadioFrequency `json:"khz"`
	Name string               `json:"name"`
}

// SettingsRequest carries the settings to send to every device. Nil
// fields are left alone.
type SettingsRequest struct {
	MacCready        *float64          `json:"mac_cready,omitempty"`
	Bugs             *float64          `json:"bugs,omitempty"`
	Ballast          *BallastSetting   `json:"ballast,omitempty"`
	QNH              *float64          `json:"qnh,omitempty"`
	Volume           *uint             `json:"volume,omitempty"`
	ActiveFrequency  *FrequencySetting `json:"active_frequency,omitempty"`
	StandbyFrequency *FrequencySetting `json:"standby_frequency,omitempty"`
}

func (r *SettingsRequest) validate() error {
	switch {
	case r.MacCready != nil && *r.MacCready < 0:
		return errors.New("mac_cready must not be negative")
	case r.Bugs != nil && (*r.Bugs <= 0 || *r.Bugs > 1):
		return errors.New("bugs must be in (0, 1]")
	case r.Ballast != nil && (r.Ballast.Fraction < 0 || r.Ballast.Fraction > 1):
		return errors.New("ballast fraction must be in [0, 1]")
	case r.QNH != nil && (*r.QNH < 800 || *r.QNH > 1100):
		return errors.New("qnh must be in [800, 1100] hPa")
	case r.Volume != nil && *r.Volume > 100:
		return errors.New("volume must be in [0, 100]")
	case r.ActiveFrequency != nil && !r.ActiveFrequency.KHz.IsDefined():
		return errors.New("active frequency is outside the air band")
	case r.StandbyFrequency != nil && !r.StandbyFrequency.KHz.IsDefined():
		return errors.New("standby frequency is outside the air band")
	}
	return nil
}

// PutSettings sends the given settings to every device supporting them
func (s *DeviceService) PutSettings(ctx context.Context, req *SettingsRequest) error {
	if err := req.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var errs []error
	if req.MacCready != nil {
		errs = append(errs, s.manager.PutMacCready(ctx, *req.MacCready))
	}
	if req.Bugs != nil {
		errs = append(errs, s.manager.PutBugs(ctx, *req.Bugs))
	}
	if req.Ballast != nil {
		errs = append(errs, s.manager.PutBallast(ctx, req.Ballast.Fraction, req.Ballast.Overload))
	}
	if req.QNH != nil {
		errs = append(errs, s.manager.PutQNH(ctx, *req.QNH))
	}
	if req.Volume != nil {
		errs = append(errs, s.manager.PutVolume(ctx, *req.Volume))
	}
	if req.ActiveFrequency != nil {
		errs = append(errs, s.manager.PutActiveFrequency(ctx, req.ActiveFrequency.KHz, req.ActiveFrequency.Name))
	}
	if req.StandbyFrequency != nil {
		errs = append(errs, s.manager.PutStandbyFrequency(ctx, req.StandbyFrequency.KHz, req.StandbyFrequency.Name))
	}
	return errors.Join(errs...)
}

// AircraftState is the merged view of all devices
type AircraftState struct {
	Basic   model.NMEAInfo    `json:"basic"`
	Derived model.DerivedInfo `json:"derived"`
}

func (s *DeviceService) AircraftState() AircraftState {
	return AircraftState{
		Basic:   s.board.Basic(),
		Derived: s.board.Derived(),
	}
}

// DeviceState returns the raw state last received from slot index
func (s *DeviceService) DeviceState(index int) (model.NMEAInfo, error) {
	if _, err := s.manager.Descriptor(index); err != nil {
		return model.NMEAInfo{}, err
	}
	return s.board.RealState(index), nil
}

// SetDerived replaces the calculated values the devices are fed with
func (s *DeviceService) SetDerived(derived model.DerivedInfo) {
	s.board.SetDerived(derived)
}

// InternalReading is one update from the host's own sensors
type InternalReading struct {
	State    *string      `json:"state,omitempty"`
	Fix      *sensors.Fix `json:"fix,omitempty"`
	Pressure *float64     `json:"pressure_hpa,omitempty"`
}

// FeedInternal passes readings of the host's sensors to an INTERNAL slot
func (s *DeviceService) FeedInternal(index int, reading *InternalReading) error {
	d, err := s.manager.Descriptor(index)
	if err != nil {
		return err
	}
	feed := d.Sensors()
	if feed == nil {
		return fmt.Errorf("device %d: %w", index, ErrNotInternal)
	}

	if reading.State != nil {
		switch *reading.State {
		case sensors.Disconnected.String():
			feed.SetConnected(sensors.Disconnected)
		case sensors.WaitingForFix.String():
			feed.SetConnected(sensors.WaitingForFix)
		case sensors.Connected.String():
			feed.SetConnected(sensors.Connected)
		default:
			return fmt.Errorf("%w: unknown sensor state %q", ErrInvalidRequest, *reading.State)
		}
	}
	if reading.Fix != nil {
		if reading.Fix.Time.IsZero() {
			return fmt.Errorf("%w: fix without time", ErrInvalidRequest)
		}
		feed.SetLocation(*reading.Fix)
	}
	if reading.Pressure != nil {
		feed.SetBarometricPressure(*reading.Pressure)
	}
	return nil
}

// Drivers lists the registered drivers
func (s *DeviceService) Drivers() []driver.Info {
	list := s.registry.List()
	infos := make([]driver.Info, len(list))
	for i, reg := range list {
		infos[i] = reg.Info()
	}
	return infos
}

// VegaSetting sends an integer setting to the first connected Vega
func (s *DeviceService) VegaSetting(name string, value int) (int, error) {
	v, index, ok := s.manager.FindVega()
	if !ok {
		return -1, ErrNoVega
	}
	if err := v.SendSetting(name, value); err != nil {
		return index, fmt.Errorf("device %d: %w", index, err)
	}
	return index, nil
}

// VegaSettingValue returns a setting received from the first connected
// Vega and asks the Vega to report it again
func (s *DeviceService) VegaSettingValue(name string) (int, bool, error) {
	v, _, ok := s.manager.FindVega()
	if !ok {
		return 0, false, ErrNoVega
	}
	value, known := v.GetSetting(name)
	if err := v.RequestSetting(name); err != nil {
		return value, known, err
	}
	return value, known, nil
}
