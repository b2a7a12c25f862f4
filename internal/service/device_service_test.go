package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"glider-device-service/internal/blackboard"
	"glider-device-service/internal/config"
	"glider-device-service/internal/device"
	"glider-device-service/internal/driver"
	"glider-device-service/internal/model"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port"
	"glider-device-service/internal/port/porttest"
	"glider-device-service/internal/repository"
	"glider-device-service/internal/sensors"
	driverapi "glider-device-service/pkg/driver"
)

const testLoggerDriver = "TestLogger"

// fakeLogger is a flight recorder answering without any wire protocol
type fakeLogger struct {
	driverapi.AbstractDevice
	rig *testRig
}

func (f *fakeLogger) EnableNMEA(env operation.Env) error {
	f.rig.nmeaEnabled.Add(1)
	return nil
}

func (f *fakeLogger) Declare(decl model.Declaration, home *model.Waypoint, env operation.Env) error {
	env.SetProgressRange(uint(decl.Size()))
	env.SetProgressPosition(uint(decl.Size()))
	return nil
}

func (f *fakeLogger) ReadFlightList(env operation.Env) ([]model.RecordedFlightInfo, error) {
	env.SetText("reading flight list")
	env.SetProgressRange(2)
	env.SetProgressPosition(1)

	if block := f.rig.block; block != nil {
		select {
		case <-block:
		case <-env.Context().Done():
			return nil, operation.ErrCancelled
		}
	}

	day := time.Date(2024, 7, 14, 0, 0, 0, 0, time.UTC)
	return []model.RecordedFlightInfo{
		{Date: day, StartTime: day.Add(10 * time.Hour), EndTime: day.Add(14*time.Hour + 30*time.Minute), Index: 0},
		{Date: day, StartTime: day.Add(15 * time.Hour), EndTime: day.Add(16 * time.Hour), Index: 1},
	}, nil
}

func (f *fakeLogger) DownloadFlight(flight model.RecordedFlightInfo, path string, env operation.Env) error {
	return os.WriteFile(path, []byte("AXXX test flight\r\n"), 0o644)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.DeviceEvent
}

func (r *recordingPublisher) Publish(event model.DeviceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) count(eventType model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type testRig struct {
	cfg         *config.Config
	board       *blackboard.Blackboard
	manager     *device.Manager
	profile     *repository.MemoryProfileRepository
	publisher   *recordingPublisher
	devices     *DeviceService
	operations  *OperationService
	block       chan struct{}
	nmeaEnabled atomic.Int32
}

func newTestRig(t *testing.T, slots []model.DeviceConfig) *testRig {
	t.Helper()
	logger := zap.NewNop()
	rig := &testRig{
		cfg: &config.Config{Device: config.DeviceConfig{
			Count:       3,
			DownloadDir: t.TempDir(),
			Slots:       slots,
		}},
		profile:   repository.NewMemoryProfileRepository(),
		publisher: &recordingPublisher{},
	}

	registry := driver.NewRegistry(logger)
	driver.RegisterDefaultDrivers(registry, logger)
	registry.Register(&driver.Register{
		Name:        testLoggerDriver,
		DisplayName: "Test logger",
		Flags:       driver.FlagLogger | driver.FlagDeclare,
		CreateOnPort: func(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driverapi.Device {
			return &fakeLogger{rig: rig}
		},
	})

	rig.board = blackboard.New(3, time.Second, rig.publisher, logger)
	rig.manager = device.NewManager(3, registry, rig.board, rig.publisher, logger, 10*time.Millisecond, device.Options{
		OpenPort: func(cfg model.DeviceConfig, handler port.Handler, logger *zap.Logger) (port.Port, error) {
			return porttest.New(cfg.BaudRate, handler), nil
		},
		OpenTimeout:    time.Second,
		ReopenInterval: time.Hour,
	})
	rig.devices = NewDeviceService(rig.manager, rig.board, registry, rig.profile, rig.cfg, rig.publisher, logger)
	rig.operations = NewOperationService(rig.manager, repository.NewMemoryOperationRepository(),
		rig.publisher, rig.cfg.Device.DownloadDir, logger)

	t.Cleanup(func() {
		rig.operations.Shutdown()
		rig.manager.Shutdown()
	})

	if err := rig.devices.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	rig.waitForJobs()
	return rig
}

func (r *testRig) waitForJobs() {
	for _, d := range r.manager.Descriptors() {
		if h := d.Job(); h != nil {
			h.Wait()
		}
	}
}

func serialSlot(path, driverName string) model.DeviceConfig {
	return model.DeviceConfig{
		PortType:   model.PortTypeSerial,
		Path:       path,
		BaudRate:   9600,
		DriverName: driverName,
	}
}

func TestStartMergesProfileAndSeed(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t, []model.DeviceConfig{serialSlot("/dev/ttyUSB0", driver.NameGeneric)})

	statuses := rig.devices.Statuses()
	if len(statuses) != 3 {
		t.Fatalf("%d statuses", len(statuses))
	}
	if statuses[0].State != "open" {
		t.Errorf("slot 0 state = %s", statuses[0].State)
	}
	if statuses[1].State != "disabled" {
		t.Errorf("slot 1 state = %s", statuses[1].State)
	}

	// the profile wins over the seed on the next start
	if _, _, err := rig.devices.UpdateConfig(ctx, 0, model.DeviceConfig{PortType: model.PortTypeInternal}); err != nil {
		t.Fatal(err)
	}
	rig.manager.Shutdown()
	if err := rig.devices.Start(ctx); err != nil {
		t.Fatal(err)
	}
	rig.waitForJobs()

	status, _ := rig.devices.Status(0)
	if status.Config.PortType != model.PortTypeInternal {
		t.Errorf("slot 0 restarted with %+v", status.Config)
	}
}

func TestUpdateConfig(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t, []model.DeviceConfig{serialSlot("/dev/ttyUSB0", driver.NameGeneric)})

	status, applied, err := rig.devices.UpdateConfig(ctx, 1, serialSlot("/dev/ttyUSB1", testLoggerDriver))
	if err != nil || !applied {
		t.Fatal(applied, err)
	}
	if status.Config.DriverName != testLoggerDriver {
		t.Errorf("status config = %+v", status.Config)
	}
	if value, _, _ := rig.profile.Get(ctx, "Port2Driver"); value != testLoggerDriver {
		t.Errorf("Port2Driver = %q", value)
	}
	if rig.publisher.count(model.EventConfigUpdate) != 1 {
		t.Error("config update not published")
	}

	tests := []struct {
		name    string
		cfg     model.DeviceConfig
		wantErr error
	}{
		{"missing path", model.DeviceConfig{PortType: model.PortTypeSerial, DriverName: driver.NameGeneric}, ErrInvalidRequest},
		{"unknown port type", model.DeviceConfig{PortType: "PARALLEL"}, ErrInvalidRequest},
		{"port in use", serialSlot("/dev/ttyUSB0", driver.NameLX), device.ErrOverlap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, applied, err := rig.devices.UpdateConfig(ctx, 2, tt.cfg); applied || !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if _, ok, _ := rig.profile.Get(ctx, "Port3Type"); ok {
				t.Error("rejected config persisted")
			}
		})
	}

	if _, _, err := rig.devices.UpdateConfig(ctx, 7, model.DeviceConfig{}); !errors.Is(err, device.ErrNoSuchDevice) {
		t.Errorf("expected ErrNoSuchDevice, got %v", err)
	}
}

func TestPutSettingsValidation(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	mc := -1.0
	bugs := 1.5
	qnh := 500.0
	volume := uint(120)
	good := 1.5

	tests := []struct {
		name string
		req  SettingsRequest
		ok   bool
	}{
		{"negative mac cready", SettingsRequest{MacCready: &mc}, false},
		{"bugs above one", SettingsRequest{Bugs: &bugs}, false},
		{"qnh out of range", SettingsRequest{QNH: &qnh}, false},
		{"volume out of range", SettingsRequest{Volume: &volume}, false},
		{"frequency outside band", SettingsRequest{ActiveFrequency: &FrequencySetting{KHz: 100000}}, false},
		{"valid", SettingsRequest{MacCready: &good}, true},
		{"empty", SettingsRequest{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rig.devices.PutSettings(ctx, &tt.req)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestFeedInternal(t *testing.T) {
	rig := newTestRig(t, []model.DeviceConfig{
		serialSlot("/dev/ttyUSB0", driver.NameGeneric),
		{PortType: model.PortTypeInternal},
	})

	connected := sensors.Connected.String()
	altitude := 812.0
	reading := &InternalReading{
		State: &connected,
		Fix: &sensors.Fix{
			Time:           time.Date(2024, 7, 14, 12, 0, 0, 0, time.UTC),
			Location:       model.GeoPoint{Latitude: 47.5, Longitude: 8.3},
			SatellitesUsed: 9,
			Altitude:       &altitude,
		},
	}
	if err := rig.devices.FeedInternal(1, reading); err != nil {
		t.Fatal(err)
	}

	state, err := rig.devices.DeviceState(1)
	if err != nil {
		t.Fatal(err)
	}
	if !state.LocationAvailable.IsValid() || state.GPSAltitude != altitude {
		t.Errorf("internal fix not stored: %+v", state)
	}

	if err := rig.devices.FeedInternal(0, reading); !errors.Is(err, ErrNotInternal) {
		t.Errorf("expected ErrNotInternal, got %v", err)
	}

	bogus := "levitating"
	if err := rig.devices.FeedInternal(1, &InternalReading{State: &bogus}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDriversAndVega(t *testing.T) {
	rig := newTestRig(t, nil)

	found := false
	for _, info := range rig.devices.Drivers() {
		if info.Name == testLoggerDriver && info.Logger && info.Declare {
			found = true
		}
	}
	if !found {
		t.Error("test logger driver not listed")
	}

	if _, err := rig.devices.VegaSetting("ToneVolume", 5); !errors.Is(err, ErrNoVega) {
		t.Errorf("expected ErrNoVega, got %v", err)
	}
}

func TestReopenAndClose(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t, []model.DeviceConfig{serialSlot("/dev/ttyUSB0", driver.NameGeneric)})

	if err := rig.devices.Close(0); err != nil {
		t.Fatal(err)
	}
	if status, _ := rig.devices.Status(0); status.State != "closed" {
		t.Errorf("state after close = %s", status.State)
	}

	if err := rig.devices.Reopen(ctx, 0); err != nil {
		t.Fatal(err)
	}
	rig.waitForJobs()
	if status, _ := rig.devices.Status(0); status.State != "open" {
		t.Errorf("state after reopen = %s", status.State)
	}

	if err := rig.devices.Reopen(ctx, 2); err == nil {
		t.Error("reopened a disabled slot")
	}
}

func TestCloseRefusesBorrowedDevice(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t, []model.DeviceConfig{serialSlot("/dev/ttyUSB0", driver.NameGeneric)})
	rig.waitForJobs()

	d, err := rig.manager.Descriptor(0)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Borrow() {
		t.Fatal("Borrow failed")
	}
	defer d.Return()

	if err := rig.devices.Close(0); !errors.Is(err, device.ErrOccupied) {
		t.Errorf("Close() error = %v, want ErrOccupied", err)
	}
	if err := rig.devices.Reopen(ctx, 0); !errors.Is(err, device.ErrOccupied) {
		t.Errorf("Reopen() error = %v, want ErrOccupied", err)
	}
	if err := rig.devices.RestartAll(ctx); !errors.Is(err, device.ErrOccupied) {
		t.Errorf("RestartAll() error = %v, want ErrOccupied", err)
	}
	if !d.IsOpen() || !d.IsBorrowed() {
		t.Error("borrowed device was closed")
	}
}
