package model

import "testing"

func TestDeviceConfigOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b DeviceConfig
		want bool
	}{
		{
			name: "same serial path",
			a:    DeviceConfig{PortType: PortTypeSerial, Path: "/dev/ttyUSB0"},
			b:    DeviceConfig{PortType: PortTypeSerial, Path: "/dev/ttyUSB0"},
			want: true,
		},
		{
			name: "different serial path",
			a:    DeviceConfig{PortType: PortTypeSerial, Path: "/dev/ttyUSB0"},
			b:    DeviceConfig{PortType: PortTypeSerial, Path: "/dev/ttyUSB1"},
			want: false,
		},
		{
			name: "serial against rfcomm",
			a:    DeviceConfig{PortType: PortTypeSerial, Path: "/dev/rfcomm0"},
			b:    DeviceConfig{PortType: PortTypeRFCOMM, Path: "/dev/rfcomm0", BluetoothMAC: "00:11:22:33:44:55"},
			want: false,
		},
		{
			name: "same bluetooth mac ignoring case",
			a:    DeviceConfig{PortType: PortTypeRFCOMM, BluetoothMAC: "00:11:22:aa:bb:cc"},
			b:    DeviceConfig{PortType: PortTypeRFCOMM, BluetoothMAC: "00:11:22:AA:BB:CC"},
			want: true,
		},
		{
			name: "same ioio uart",
			a:    DeviceConfig{PortType: PortTypeIOIOUART, IOIOUARTID: 2},
			b:    DeviceConfig{PortType: PortTypeIOIOUART, IOIOUARTID: 2},
			want: true,
		},
		{
			name: "different ioio uart",
			a:    DeviceConfig{PortType: PortTypeIOIOUART, IOIOUARTID: 1},
			b:    DeviceConfig{PortType: PortTypeIOIOUART, IOIOUARTID: 2},
			want: false,
		},
		{
			name: "two internal",
			a:    DeviceConfig{PortType: PortTypeInternal},
			b:    DeviceConfig{PortType: PortTypeInternal},
			want: true,
		},
		{
			name: "two auto",
			a:    DeviceConfig{PortType: PortTypeAuto},
			b:    DeviceConfig{PortType: PortTypeAuto},
			want: true,
		},
		{
			name: "tcp listeners on different ports",
			a:    DeviceConfig{PortType: PortTypeTCPListener, TCPPort: 4353},
			b:    DeviceConfig{PortType: PortTypeTCPListener, TCPPort: 4354},
			want: false,
		},
		{
			name: "internal against serial",
			a:    DeviceConfig{PortType: PortTypeInternal},
			b:    DeviceConfig{PortType: PortTypeSerial, Path: "/dev/ttyS0"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DeviceConfig
		wantErr bool
	}{
		{"disabled", DeviceConfig{PortType: PortTypeDisabled}, false},
		{"serial ok", DeviceConfig{PortType: PortTypeSerial, Path: "/dev/ttyS0", DriverName: "LX"}, false},
		{"serial without path", DeviceConfig{PortType: PortTypeSerial, DriverName: "LX"}, true},
		{"serial without driver", DeviceConfig{PortType: PortTypeSerial, Path: "/dev/ttyS0"}, true},
		{"tcp port zero", DeviceConfig{PortType: PortTypeTCPListener, DriverName: "Generic"}, true},
		{"tcp port too large", DeviceConfig{PortType: PortTypeTCPListener, TCPPort: 40000, DriverName: "Generic"}, true},
		{"internal needs no driver", DeviceConfig{PortType: PortTypeInternal}, false},
		{"unknown type", DeviceConfig{PortType: "USB"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeviceConfigClear(t *testing.T) {
	cfg := DeviceConfig{PortType: PortTypeSerial, Path: "/dev/ttyS0", DriverName: "CAI302"}
	cfg.Clear()

	if cfg.IsConfigured() {
		t.Error("cleared config should not be configured")
	}
	if cfg.Path != "" || cfg.DriverName != "" {
		t.Errorf("cleared config kept fields: %+v", cfg)
	}
}
