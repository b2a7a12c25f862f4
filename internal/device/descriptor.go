// internal/device/descriptor.go
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"glider-device-service/internal/async"
	"glider-device-service/internal/blackboard"
	"glider-device-service/internal/buffer"
	"glider-device-service/internal/driver"
	"glider-device-service/internal/model"
	"glider-device-service/internal/nmea"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port"
	"glider-device-service/internal/sensors"
	"glider-device-service/internal/utils"
	driverapi "glider-device-service/pkg/driver"
)

const (
	DefaultReopenInterval = 30 * time.Second
	DefaultOpenTimeout    = 10 * time.Second

	inboxSize = 256
)

var (
	ErrOccupied    = errors.New("device is occupied")
	ErrNotBorrowed = errors.New("device is not borrowed")
	ErrNotOpen     = errors.New("device is not open")
)

// PortOpener creates the port for a configuration
type PortOpener func(cfg model.DeviceConfig, handler port.Handler, logger *zap.Logger) (port.Port, error)

// Options tune a Descriptor; zero values select the defaults
type Options struct {
	OpenPort       PortOpener
	OpenTimeout    time.Duration
	ReopenInterval time.Duration
}

// Descriptor owns the port and driver session of one device slot and
// feeds what the instrument sends into the blackboard.
type Descriptor struct {
	index     int
	registry  *driver.Registry
	board     *blackboard.Blackboard
	publisher model.EventPublisher
	logger    *zap.Logger

	openPort       PortOpener
	openTimeout    time.Duration
	reopenInterval time.Duration

	runner *async.Runner

	mu         sync.Mutex
	config     model.DeviceConfig
	register   *driver.Register
	port       port.Port
	device     driverapi.Device
	sensors    *sensors.Sensors
	parser     *nmea.Parser
	devLogger  *utils.DeviceLogger
	pipeTo     *Descriptor
	wasAlive   bool
	ticker     bool
	lastReopen time.Time
	lastError  error
	// configError is set when the configuration cannot be opened at all;
	// AutoReopen leaves such a slot alone until it is reconfigured
	configError error

	settingsMu       sync.Mutex
	settingsSent     model.ExternalSettings
	settingsReceived model.ExternalSettings

	borrowed atomic.Bool

	inbox    chan []byte
	splitter *buffer.LineSplitter
}

// NewDescriptor creates a closed descriptor for slot index
func NewDescriptor(index int, registry *driver.Registry, board *blackboard.Blackboard,
	publisher model.EventPublisher, logger *zap.Logger, opts Options) *Descriptor {
	if opts.OpenPort == nil {
		opts.OpenPort = port.Open
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}
	if opts.ReopenInterval <= 0 {
		opts.ReopenInterval = DefaultReopenInterval
	}

	logger = logger.With(zap.Int("device_index", index))
	return &Descriptor{
		index:          index,
		registry:       registry,
		board:          board,
		publisher:      publisher,
		logger:         logger,
		openPort:       opts.OpenPort,
		openTimeout:    opts.OpenTimeout,
		reopenInterval: opts.ReopenInterval,
		runner:         async.NewRunner(logger),
		config:         model.DeviceConfig{PortType: model.PortTypeDisabled},
		inbox:          make(chan []byte, inboxSize),
		splitter:       buffer.NewLineSplitter(buffer.DefaultMaxLineLength),
	}
}

func (d *Descriptor) Index() int {
	return d.index
}

func (d *Descriptor) Config() model.DeviceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// SetConfig replaces the configuration; it takes effect on the next Open
func (d *Descriptor) SetConfig(cfg model.DeviceConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	d.configError = nil
	d.lastError = nil
}

// ClearConfig disables the slot
func (d *Descriptor) ClearConfig() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.Clear()
}

func (d *Descriptor) IsConfigured() bool {
	return d.Config().IsConfigured()
}

// IsOpen reports whether a port session or the internal sensors are active
func (d *Descriptor) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port != nil || d.sensors != nil
}

func (d *Descriptor) IsBorrowed() bool {
	return d.borrowed.Load()
}

// IsOccupied reports whether a caller or an async job holds the device
func (d *Descriptor) IsOccupied() bool {
	return d.borrowed.Load() || d.runner.IsBusy()
}

func (d *Descriptor) IsAlive() bool {
	return d.board.IsAlive(d.index)
}

// IsNMEAOut reports whether the bound driver receives forwarded NMEA
func (d *Descriptor) IsNMEAOut() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.register != nil && d.register.IsNMEAOut()
}

// Register returns the driver bound by the last Open, if any
func (d *Descriptor) Register() *driver.Register {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.register
}

// Device returns the open driver session, if any
func (d *Descriptor) Device() driverapi.Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.device
}

// Sensors returns the host sensor feed of an INTERNAL slot
func (d *Descriptor) Sensors() *sensors.Sensors {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sensors
}

// SetPipeTo forwards every received line to target; nil disables
func (d *Descriptor) SetPipeTo(target *Descriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipeTo = target
}

// Job returns the current or last async job
func (d *Descriptor) Job() *async.Handle {
	return d.runner.Current()
}

// Open starts connecting in the background and returns at once. The
// returned handle is nil when nothing had to be started.
func (d *Descriptor) Open(ctx context.Context) (*async.Handle, error) {
	d.mu.Lock()
	cfg := d.config
	d.lastReopen = time.Now()
	if d.port != nil || d.sensors != nil {
		d.mu.Unlock()
		return nil, nil
	}
	d.mu.Unlock()

	if !cfg.IsConfigured() {
		return nil, nil
	}

	if cfg.PortType == model.PortTypeInternal {
		d.openInternal()
		return nil, nil
	}

	reg, err := d.registry.FindByName(cfg.DriverName)
	if err != nil {
		d.logger.Warn("Device driver not found, slot disabled",
			zap.String("driver", cfg.DriverName), zap.Error(err))
		d.mu.Lock()
		d.configError = err
		d.lastError = err
		d.mu.Unlock()
		return nil, err
	}

	d.mu.Lock()
	d.register = reg
	d.mu.Unlock()

	handle, err := d.runner.Start(ctx, "open", func(env operation.Env) error {
		return d.DoOpen(env, cfg, reg)
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOccupied, err)
	}
	return handle, nil
}

func (d *Descriptor) openInternal() {
	s := sensors.New(d.index, d.board, d.logger)

	d.mu.Lock()
	d.sensors = s
	d.register = nil
	d.lastError = nil
	d.mu.Unlock()

	s.SetConnected(sensors.WaitingForFix)
	d.logger.Info("Internal sensors enabled")
	d.publish(model.EventDeviceConnected, model.JSONObject{"port": model.PortTypeInternal})
}

// DoOpen is the blocking part of Open: it opens the port, creates the
// driver session and starts receiving. It runs on the async runner.
func (d *Descriptor) DoOpen(env operation.Env, cfg model.DeviceConfig, reg *driver.Register) error {
	devLogger := utils.NewDeviceLogger(d.logger, d.index, reg.Name, cfg.PortType)

	err := d.doOpen(env, cfg, reg, devLogger)
	switch {
	case err == nil:
		devLogger.LogConnection("open", true, nil)
		d.publish(model.EventDeviceConnected, model.JSONObject{
			"driver": reg.Name,
			"port":   cfg.String(),
		})
	case errors.Is(err, operation.ErrCancelled):
		devLogger.Info("Device open cancelled")
	default:
		devLogger.LogConnection("open", false, err)
		d.publish(model.EventDeviceError, model.JSONObject{
			"driver": reg.Name,
			"port":   cfg.String(),
			"error":  err.Error(),
		})
	}

	d.mu.Lock()
	d.lastError = err
	d.mu.Unlock()
	return err
}

func (d *Descriptor) doOpen(env operation.Env, cfg model.DeviceConfig, reg *driver.Register, devLogger *utils.DeviceLogger) error {
	env.SetText(fmt.Sprintf("Opening %s", cfg))

	p, err := d.openPortWithin(env, cfg)
	if err != nil {
		return err
	}

	dev := reg.Create(p, cfg, devLogger.Logger)
	if err := dev.Open(env); err != nil {
		p.Close()
		if env.IsCancelled() {
			return operation.ErrCancelled
		}
		return fmt.Errorf("driver %s failed to open: %w", reg.Name, err)
	}

	if err := p.StartRxThread(); err != nil {
		p.Close()
		return fmt.Errorf("failed to start receiving: %w", err)
	}

	parser := nmea.NewParser()
	parser.IgnoreChecksum = cfg.IgnoreChecksum

	d.mu.Lock()
	if env.IsCancelled() {
		d.mu.Unlock()
		p.Close()
		return operation.ErrCancelled
	}
	d.port = p
	d.device = dev
	d.parser = parser
	d.devLogger = devLogger
	d.wasAlive = false
	d.ticker = false
	d.mu.Unlock()

	d.settingsMu.Lock()
	d.settingsSent.Clear()
	d.settingsReceived.Clear()
	d.settingsMu.Unlock()
	return nil
}

// openPortWithin opens the port, giving up after the open timeout. A
// port that shows up after we gave up is closed.
func (d *Descriptor) openPortWithin(env operation.Env, cfg model.DeviceConfig) (port.Port, error) {
	type result struct {
		p   port.Port
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := d.openPort(cfg, port.HandlerFunc(d.DataReceived), d.logger)
		ch <- result{p, err}
	}()

	timer := time.NewTimer(d.openTimeout)
	defer timer.Stop()

	var cause error
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.p, nil
	case <-env.Context().Done():
		cause = operation.ErrCancelled
	case <-timer.C:
		cause = fmt.Errorf("opening %s: %w", cfg, port.ErrTimeout)
	}

	go func() {
		if r := <-ch; r.p != nil {
			r.p.Close()
		}
	}()
	return nil, cause
}

// Close cancels a pending open, ends the driver session and closes the
// port. It is safe to call on a closed descriptor.
func (d *Descriptor) Close() {
	d.runner.CancelAndWait()

	d.mu.Lock()
	p := d.port
	s := d.sensors
	devLogger := d.devLogger
	d.device = nil
	d.port = nil
	d.sensors = nil
	d.parser = nil
	d.mu.Unlock()

	d.borrowed.Store(false)

	if p == nil && s == nil {
		return
	}

	if p != nil {
		p.StopRxThread()
		if err := p.Close(); err != nil {
			d.logger.Debug("Port close failed", zap.Error(err))
		}
		if devLogger != nil {
			devLogger.LogConnection("close", true, nil)
		}
	}
	if s != nil {
		d.logger.Info("Internal sensors disabled")
	}

	d.board.ResetRealState(d.index)
	d.board.ScheduleMerge()
	d.publish(model.EventDeviceDisconnected, nil)
}

// CloseIdle closes the device unless a caller has borrowed it. The
// borrow flag is held for the duration of the close, so no Borrow can
// slip in between the check and the close.
func (d *Descriptor) CloseIdle() error {
	if !d.borrowed.CompareAndSwap(false, true) {
		return ErrOccupied
	}
	d.Close()
	return nil
}

// Reopen closes the device and starts opening it again. A borrowed
// device is left alone.
func (d *Descriptor) Reopen(ctx context.Context) (*async.Handle, error) {
	if err := d.CloseIdle(); err != nil {
		return nil, err
	}
	return d.Open(ctx)
}

// AutoReopen retries a configured device that is not open, at most once
// per reopen interval
func (d *Descriptor) AutoReopen(ctx context.Context) {
	d.mu.Lock()
	cfg := d.config
	open := d.port != nil || d.sensors != nil
	configError := d.configError
	due := time.Since(d.lastReopen) >= d.reopenInterval
	d.mu.Unlock()

	if !cfg.IsConfigured() || open || configError != nil || d.IsOccupied() || !due {
		return
	}

	d.logger.Info("Reopening device", zap.String("port", cfg.String()))
	if _, err := d.Reopen(ctx); err != nil {
		d.logger.Warn("Reopen failed", zap.Error(err))
	}
}

// Borrow grants exclusive use of the device for a long operation.
// Link timeout handling is suspended until Return.
func (d *Descriptor) Borrow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil || d.port == nil || d.runner.IsBusy() {
		return false
	}
	return d.borrowed.CompareAndSwap(false, true)
}

// Return ends a Borrow
func (d *Descriptor) Return() {
	d.borrowed.Store(false)
}

// withRxStopped runs fn on a borrowed device while the port is read
// synchronously
func (d *Descriptor) withRxStopped(fn func(dev driverapi.Device) error) error {
	if !d.borrowed.Load() {
		return ErrNotBorrowed
	}

	d.mu.Lock()
	p, dev := d.port, d.device
	d.mu.Unlock()
	if p == nil || dev == nil {
		return ErrNotOpen
	}

	if err := p.StopRxThread(); err != nil {
		return fmt.Errorf("failed to stop receiving: %w", err)
	}
	defer p.StartRxThread()

	return fn(dev)
}

// EnableNMEA returns a borrowed device to NMEA streaming
func (d *Descriptor) EnableNMEA(env operation.Env) error {
	return d.withRxStopped(func(dev driverapi.Device) error {
		return dev.EnableNMEA(env)
	})
}

func (d *Descriptor) Declare(decl model.Declaration, home *model.Waypoint, env operation.Env) error {
	return d.withRxStopped(func(dev driverapi.Device) error {
		return dev.Declare(decl, home, env)
	})
}

func (d *Descriptor) ReadFlightList(env operation.Env) ([]model.RecordedFlightInfo, error) {
	var flights []model.RecordedFlightInfo
	err := d.withRxStopped(func(dev driverapi.Device) error {
		var err error
		flights, err = dev.ReadFlightList(env)
		return err
	})
	return flights, err
}

func (d *Descriptor) DownloadFlight(flight model.RecordedFlightInfo, path string, env operation.Env) error {
	return d.withRxStopped(func(dev driverapi.Device) error {
		return dev.DownloadFlight(flight, path, env)
	})
}

// DataReceived is called on the port's receive goroutine. It must not
// block: the port holds its delivery lock meanwhile.
func (d *Descriptor) DataReceived(data []byte) {
	select {
	case d.inbox <- data:
	default:
		d.logger.Warn("Receive queue full, data dropped", zap.Int("bytes", len(data)))
	}
}

// Run processes received data until ctx is done
func (d *Descriptor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-d.inbox:
			d.handleData(data)
		}
	}
}

func (d *Descriptor) handleData(data []byte) {
	var lines []string
	d.splitter.Feed(data, func(line string) {
		lines = append(lines, line)
	})

	// more data may already be waiting; handle it as one batch
	for drained := false; !drained; {
		select {
		case more := <-d.inbox:
			d.splitter.Feed(more, func(line string) {
				lines = append(lines, line)
			})
		default:
			drained = true
		}
	}

	if len(lines) > 0 {
		d.handleLines(lines)
	}
}

func (d *Descriptor) handleLines(lines []string) {
	d.mu.Lock()
	dev := d.device
	parser := d.parser
	pipeTo := d.pipeTo
	devLogger := d.devLogger
	ignoreChecksum := d.config.IgnoreChecksum
	d.mu.Unlock()

	if dev == nil || parser == nil {
		return
	}

	accepted := lines[:0:0]
	for _, line := range lines {
		if pipeTo != nil {
			pipeTo.ForwardLine(line)
		}

		ok := nmea.CheckLine(line, ignoreChecksum)
		if devLogger != nil {
			devLogger.LogLine(line, ok)
		}
		if ok {
			accepted = append(accepted, line)
		}
	}

	// a batch of corrupt lines leaves the blackboard untouched
	if len(accepted) == 0 {
		return
	}

	d.board.UpdateRealState(d.index, func(info *model.NMEAInfo) {
		saved := info.Settings
		info.Settings.Clear()

		for _, line := range accepted {
			if dev.ParseNMEA(line, info) || parser.ParseLine(line, info) {
				info.Alive.Update(info.Clock)
			}
		}

		fresh := info.Settings
		d.settingsMu.Lock()
		previous := d.settingsReceived
		d.settingsReceived.Complement(fresh)
		sent := d.settingsSent
		d.settingsMu.Unlock()

		// drop what only echoes our own commands or repeats the last report
		fresh.EliminateRedundant(sent, previous)

		info.Settings = saved
		info.Settings.Complement(fresh)
	})
	d.board.ScheduleMerge()
}

// ForwardLine writes a line received by another device to this one
func (d *Descriptor) ForwardLine(line string) {
	d.mu.Lock()
	p := d.port
	d.mu.Unlock()

	if p == nil || d.IsOccupied() {
		return
	}
	if err := port.WriteString(p, line+"\r\n"); err != nil {
		d.logger.Debug("NMEA forward failed", zap.Error(err))
	}
}

// OnSysTicker runs the periodic housekeeping: it closes a failed port,
// handles link timeouts and forwards every other tick to the driver.
func (d *Descriptor) OnSysTicker(derived model.DerivedInfo) {
	d.mu.Lock()
	p := d.port
	d.mu.Unlock()

	if p != nil && p.State() == port.StateFailed && !d.IsOccupied() {
		d.logger.Warn("Port failed, closing device")
		d.Close()
		return
	}

	d.mu.Lock()
	dev := d.device
	d.mu.Unlock()
	if dev == nil {
		return
	}

	alive := d.board.IsAlive(d.index)

	d.mu.Lock()
	wasAlive := d.wasAlive
	d.wasAlive = alive
	tick := false
	if alive || d.borrowed.Load() {
		d.ticker = !d.ticker
		tick = d.ticker
	}
	d.mu.Unlock()

	if wasAlive && !alive && !d.IsOccupied() {
		d.handleLinkTimeout(dev)
	}

	if tick {
		dev.OnSysTicker(derived)
	}
}

func (d *Descriptor) handleLinkTimeout(dev driverapi.Device) {
	d.logger.Info("Device link timeout")
	d.publish(model.EventLinkTimeout, nil)

	_, err := d.runner.Start(context.Background(), "link_timeout", func(env operation.Env) error {
		dev.LinkTimeout()

		d.mu.Lock()
		p := d.port
		d.mu.Unlock()
		if p == nil {
			return nil
		}

		if err := p.StopRxThread(); err != nil {
			return err
		}
		defer p.StartRxThread()
		return dev.EnableNMEA(env)
	}, nil)
	if err != nil {
		d.logger.Debug("Link timeout handling skipped", zap.Error(err))
	}
}

// putSetting sends a pilot setting unless the instrument already has it
func (d *Descriptor) putSetting(name string, known func(s model.ExternalSettings) bool,
	send func(dev driverapi.Device) error, record func(s *model.ExternalSettings, clock time.Duration)) error {
	d.mu.Lock()
	dev := d.device
	d.mu.Unlock()
	if dev == nil {
		return ErrNotOpen
	}

	d.settingsMu.Lock()
	skip := known(d.settingsSent) || known(d.settingsReceived)
	d.settingsMu.Unlock()
	if skip {
		return nil
	}

	if !d.Borrow() {
		return ErrOccupied
	}
	err := send(dev)
	d.Return()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	if record != nil {
		d.settingsMu.Lock()
		record(&d.settingsSent, d.board.Clock())
		d.settingsMu.Unlock()
	}
	return nil
}

func (d *Descriptor) PutMacCready(value float64, env operation.Env) error {
	return d.putSetting("mac_cready",
		func(s model.ExternalSettings) bool { return s.CompareMacCready(value) },
		func(dev driverapi.Device) error { return dev.PutMacCready(value, env) },
		func(s *model.ExternalSettings, clock time.Duration) { s.ProvideMacCready(value, clock) })
}

func (d *Descriptor) PutBugs(value float64, env operation.Env) error {
	return d.putSetting("bugs",
		func(s model.ExternalSettings) bool { return s.CompareBugs(value) },
		func(dev driverapi.Device) error { return dev.PutBugs(value, env) },
		func(s *model.ExternalSettings, clock time.Duration) { s.ProvideBugs(value, clock) })
}

func (d *Descriptor) PutBallast(fraction, overload float64, env operation.Env) error {
	return d.putSetting("ballast",
		func(s model.ExternalSettings) bool {
			return s.CompareBallastFraction(fraction) && s.CompareBallastOverload(overload)
		},
		func(dev driverapi.Device) error { return dev.PutBallast(fraction, overload, env) },
		func(s *model.ExternalSettings, clock time.Duration) {
			s.ProvideBallastFraction(fraction, clock)
			s.ProvideBallastOverload(overload, clock)
		})
}

func (d *Descriptor) PutQNH(value float64, env operation.Env) error {
	return d.putSetting("qnh",
		func(s model.ExternalSettings) bool { return s.CompareQNH(value) },
		func(dev driverapi.Device) error { return dev.PutQNH(value, env) },
		func(s *model.ExternalSettings, clock time.Duration) { s.ProvideQNH(value, clock) })
}

func (d *Descriptor) PutVolume(value uint, env operation.Env) error {
	return d.putSetting("volume",
		func(s model.ExternalSettings) bool { return s.CompareVolume(value) },
		func(dev driverapi.Device) error { return dev.PutVolume(value, env) },
		func(s *model.ExternalSettings, clock time.Duration) { s.ProvideVolume(value, clock) })
}

func (d *Descriptor) PutActiveFrequency(freq model.RadioFrequency, name string, env operation.Env) error {
	return d.putSetting("active_frequency",
		func(model.ExternalSettings) bool { return false },
		func(dev driverapi.Device) error { return dev.PutActiveFrequency(freq, name, env) },
		nil)
}

func (d *Descriptor) PutStandbyFrequency(freq model.RadioFrequency, name string, env operation.Env) error {
	return d.putSetting("standby_frequency",
		func(model.ExternalSettings) bool { return false },
		func(dev driverapi.Device) error { return dev.PutStandbyFrequency(freq, name, env) },
		nil)
}

// Status is a point in time view of the descriptor
type Status struct {
	Index     int                `json:"index"`
	Config    model.DeviceConfig `json:"config"`
	State     string             `json:"state"`
	Driver    *driver.Info       `json:"driver,omitempty"`
	Alive     bool               `json:"alive"`
	Borrowed  bool               `json:"borrowed"`
	Busy      bool               `json:"busy"`
	LastError string             `json:"last_error,omitempty"`
	Port      *port.Stats        `json:"port,omitempty"`
}

func (d *Descriptor) Status() Status {
	d.mu.Lock()
	status := Status{
		Index:    d.index,
		Config:   d.config,
		Borrowed: d.borrowed.Load(),
		Busy:     d.runner.IsBusy(),
	}
	if d.register != nil {
		info := d.register.Info()
		status.Driver = &info
	}
	if d.lastError != nil {
		status.LastError = d.lastError.Error()
	}
	if d.port != nil {
		stats := d.port.Stats()
		status.Port = &stats
	}
	open := d.port != nil || d.sensors != nil
	failed := d.port != nil && d.port.State() == port.StateFailed
	d.mu.Unlock()

	status.Alive = d.IsAlive()

	switch {
	case !status.Config.IsConfigured():
		status.State = "disabled"
	case failed:
		status.State = "failed"
	case open && status.Borrowed:
		status.State = "borrowed"
	case open:
		status.State = "open"
	case status.Busy:
		status.State = "opening"
	case status.LastError != "":
		status.State = "error"
	default:
		status.State = "closed"
	}
	return status
}

func (d *Descriptor) publish(eventType model.EventType, data model.JSONObject) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(model.NewDeviceEvent(eventType, d.index, "descriptor", data))
}
