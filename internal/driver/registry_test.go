package driver

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/port"
	"glider-device-service/internal/port/porttest"
	"glider-device-service/pkg/driver"
)

func newDefaultRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := NewRegistry(zap.NewNop())
	RegisterDefaultDrivers(registry, zap.NewNop())
	return registry
}

func TestFindByName(t *testing.T) {
	registry := newDefaultRegistry(t)

	tests := []struct {
		name    string
		lookup  string
		wantErr bool
	}{
		{"generic", NameGeneric, false},
		{"cai302", NameCAI302, false},
		{"volkslogger", NameVolkslogger, false},
		{"case sensitive", "flarm", true},
		{"unknown", "Borgelt B50", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := registry.FindByName(tt.lookup)
			if tt.wantErr {
				if !errors.Is(err, driver.ErrNoSuchDriver) {
					t.Fatalf("expected ErrNoSuchDriver, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if reg.Name != tt.lookup {
				t.Errorf("got driver %q, want %q", reg.Name, tt.lookup)
			}
		})
	}
}

func TestListKeepsRegistrationOrder(t *testing.T) {
	registry := newDefaultRegistry(t)

	want := []string{
		NameGeneric, NameCAI302, NameFLARM, NameLX,
		NameVolkslogger, NameVega, NameCondor, NameNMEAOut,
	}
	list := registry.List()
	if len(list) != len(want) {
		t.Fatalf("got %d drivers, want %d", len(list), len(want))
	}
	for i, reg := range list {
		if reg.Name != want[i] {
			t.Errorf("driver %d = %q, want %q", i, reg.Name, want[i])
		}
	}
}

func TestReRegistrationReplaces(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	registry.Register(&Register{Name: "A", DisplayName: "first"})
	registry.Register(&Register{Name: "B"})
	registry.Register(&Register{Name: "A", DisplayName: "second"})

	list := registry.List()
	if len(list) != 2 {
		t.Fatalf("got %d drivers, want 2", len(list))
	}
	if list[0].Name != "A" || list[0].DisplayName != "second" {
		t.Errorf("first entry = %+v", list[0])
	}
}

func TestLoggers(t *testing.T) {
	registry := newDefaultRegistry(t)

	loggers := registry.Loggers()
	if len(loggers) != 1 || loggers[0].Name != NameVolkslogger {
		t.Fatalf("unexpected loggers: %v", loggers)
	}
	if !loggers[0].UsesBulkBaudRate() {
		t.Error("Volkslogger should use the bulk baud rate")
	}
}

func TestFlags(t *testing.T) {
	registry := newDefaultRegistry(t)

	flarm, _ := registry.FindByName(NameFLARM)
	if !flarm.CanDeclare() || !flarm.IsManageable() || flarm.IsLogger() {
		t.Errorf("FLARM flags = %s", flarm.Flags)
	}

	out, _ := registry.FindByName(NameNMEAOut)
	if !out.IsNMEAOut() {
		t.Error("NmeaOut must be an NMEA output")
	}

	info := flarm.Info()
	if info.Name != NameFLARM || !info.Declare || info.Logger {
		t.Errorf("unexpected info: %+v", info)
	}

	if got := (FlagDeclare | FlagLogger).String(); got != "declare,logger" {
		t.Errorf("Flags.String() = %q", got)
	}
}

func TestEveryDriverCreatesADevice(t *testing.T) {
	registry := newDefaultRegistry(t)
	cfg := model.DeviceConfig{PortType: model.PortTypeSerial, Path: "/dev/ttyUSB0", BaudRate: 4800}

	for _, reg := range registry.List() {
		t.Run(reg.Name, func(t *testing.T) {
			dev := reg.Create(porttest.New(4800, nil), cfg, zap.NewNop())
			if dev == nil {
				t.Fatal("factory returned nil")
			}
		})
	}
}

func TestCreateClearsBulkBaudRate(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
		want  uint
	}{
		{"bulk driver keeps the bulk rate", FlagLogger | FlagBulkBaudRate, 115200},
		{"other drivers stay at the line rate", FlagLogger, 9600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got uint
			reg := &Register{
				Name:  "Test",
				Flags: tt.flags,
				CreateOnPort: func(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driver.Device {
					got = cfg.EffectiveBulkBaudRate()
					return &driver.AbstractDevice{}
				},
			}

			cfg := model.DeviceConfig{PortType: model.PortTypeSerial, Path: "/dev/ttyUSB0", BaudRate: 9600, BulkBaudRate: 115200}
			reg.Create(porttest.New(9600, nil), cfg, zap.NewNop())
			if got != tt.want {
				t.Errorf("bulk baud rate = %d, want %d", got, tt.want)
			}
			if reg.Info().BulkBaudRate != reg.UsesBulkBaudRate() {
				t.Error("Info does not report the bulk baud rate flag")
			}
		})
	}
}
