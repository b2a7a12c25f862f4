package profile

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"glider-device-service/internal/model"
	"glider-device-service/internal/repository"
)

func TestSaveAndLoadDeviceConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  model.DeviceConfig
	}{
		{"serial", model.DeviceConfig{
			PortType: model.PortTypeSerial, Path: "/dev/ttyUSB0", BaudRate: 19200,
			BulkBaudRate: 115200, DriverName: "Volkslogger", IgnoreChecksum: true,
		}},
		{"bluetooth", model.DeviceConfig{
			PortType: model.PortTypeRFCOMM, BluetoothMAC: "00:11:22:33:44:55",
			Path: "/dev/rfcomm0", BaudRate: 38400, DriverName: "FLARM", K6Bt: true,
		}},
		{"tcp listener", model.DeviceConfig{
			PortType: model.PortTypeTCPListener, TCPPort: 4353, DriverName: "Condor",
		}},
		{"internal", model.DeviceConfig{PortType: model.PortTypeInternal}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repository.NewMemoryProfileRepository()
			if err := SaveDeviceConfig(ctx, repo, i, tt.cfg); err != nil {
				t.Fatal(err)
			}
			got, found, err := LoadDeviceConfig(ctx, repo, i)
			if err != nil || !found {
				t.Fatalf("LoadDeviceConfig = %v, %v", found, err)
			}
			if !reflect.DeepEqual(got, tt.cfg) {
				t.Errorf("got %+v, want %+v", got, tt.cfg)
			}
		})
	}
}

func TestSaveRemovesStaleKeys(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()

	SaveDeviceConfig(ctx, repo, 0, model.DeviceConfig{
		PortType: model.PortTypeSerial, Path: "/dev/ttyUSB0", BaudRate: 4800, DriverName: "Generic",
	})
	SaveDeviceConfig(ctx, repo, 0, model.DeviceConfig{PortType: model.PortTypeDisabled})

	if _, ok, _ := repo.Get(ctx, "Port1Path"); ok {
		t.Error("Port1Path kept after disabling the slot")
	}
	if value, _, _ := repo.Get(ctx, "Port1Type"); value != string(model.PortTypeDisabled) {
		t.Errorf("Port1Type = %q", value)
	}
}

func TestLoadMissingSlot(t *testing.T) {
	repo := repository.NewMemoryProfileRepository()
	cfg, found, err := LoadDeviceConfig(context.Background(), repo, 3)
	if err != nil || found {
		t.Fatalf("LoadDeviceConfig = %v, %v", found, err)
	}
	if cfg.IsConfigured() {
		t.Errorf("missing slot configured: %+v", cfg)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		key, value string
	}{
		{"Port1Type", "PARALLEL"},
		{"Port1BaudRate", "fast"},
		{"Port1TCPPort", "-x"},
		{"Port1K6Bt", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			repo := repository.NewMemoryProfileRepository()
			repo.Set(ctx, "Port1Type", "SERIAL")
			repo.Set(ctx, tt.key, tt.value)
			if _, _, err := LoadDeviceConfig(ctx, repo, 0); err == nil {
				t.Errorf("%s=%q accepted", tt.key, tt.value)
			}
		})
	}
}

type failingProfile struct {
	repository.ProfileRepository
}

func (failingProfile) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func TestLoadDeviceConfigsSeedsMissingSlots(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProfileRepository()
	SaveDeviceConfig(ctx, repo, 1, model.DeviceConfig{PortType: model.PortTypeInternal})

	seed := []model.DeviceConfig{
		{PortType: model.PortTypeSerial, Path: "/dev/ttyS0", BaudRate: 4800, DriverName: "Generic"},
		{PortType: model.PortTypeSerial, Path: "/dev/ttyS1", BaudRate: 4800, DriverName: "Generic"},
	}

	configs, err := LoadDeviceConfigs(ctx, repo, 3, seed)
	if err != nil {
		t.Fatal(err)
	}
	if configs[0].Path != "/dev/ttyS0" {
		t.Errorf("slot 0 not seeded: %+v", configs[0])
	}
	if configs[1].PortType != model.PortTypeInternal {
		t.Errorf("stored slot 1 overridden by seed: %+v", configs[1])
	}
	if configs[2].IsConfigured() {
		t.Errorf("slot 2 configured: %+v", configs[2])
	}

	if _, err := LoadDeviceConfigs(ctx, failingProfile{}, 1, nil); err == nil {
		t.Error("store error not reported")
	}
}
