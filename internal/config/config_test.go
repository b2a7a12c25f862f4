package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"glider-device-service/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Device.Count != 6 {
		t.Errorf("device.count = %d, want 6", cfg.Device.Count)
	}
	if cfg.Device.ReopenInterval != 30*time.Second {
		t.Errorf("device.reopen_interval = %v, want 30s", cfg.Device.ReopenInterval)
	}
	if cfg.Database.Enabled {
		t.Error("database should be disabled by default")
	}
	if cfg.GetServerAddr() != "0.0.0.0:8084" {
		t.Errorf("server address = %s", cfg.GetServerAddr())
	}
}

func TestLoadSlots(t *testing.T) {
	dir := writeConfig(t, `
device:
  count: 2
  slots:
    - port_type: serial
      path: /dev/ttyUSB0
      baud_rate: 9600
      driver: Volkslogger
    - port_type: TCP_LISTENER
      tcp_port: 4353
      driver: Generic
      ignore_checksum: true
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Device.Slots) != 2 {
		t.Fatalf("got %d slots", len(cfg.Device.Slots))
	}

	serial := cfg.Device.Slots[0]
	if serial.Path != "/dev/ttyUSB0" || serial.BaudRate != 9600 || serial.DriverName != "Volkslogger" {
		t.Errorf("unexpected serial slot: %+v", serial)
	}

	tcp := cfg.Device.Slots[1]
	if tcp.PortType != model.PortTypeTCPListener || tcp.TCPPort != 4353 || !tcp.IgnoreChecksum {
		t.Errorf("unexpected tcp slot: %+v", tcp)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"too many slots", "device:\n  count: 1\n  slots:\n    - port_type: INTERNAL\n    - port_type: INTERNAL\n"},
		{"serial without path", "device:\n  slots:\n    - port_type: SERIAL\n      driver: Generic\n"},
		{"bad environment", "app:\n  environment: mars\n"},
		{"bad level", "logging:\n  level: loud\n"},
		{"zero slots", "device:\n  count: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("GLIDER_DEVICE_SERVER_PORT", "9999")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("server.port = %s, want 9999", cfg.Server.Port)
	}
}
