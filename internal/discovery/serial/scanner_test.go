package serial

import (
	"context"
	"errors"
	"testing"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"glider-device-service/internal/model"
)

func TestScan(t *testing.T) {
	s := NewScanner(zap.NewNop())
	s.list = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "1546", PID: "01a8", SerialNumber: "42"},
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", Product: "FT232R"},
			{Name: "/dev/ttyUSB1", IsUSB: true, VID: "dead", PID: "beef", Product: "Mystery"},
		}, nil
	}

	ports, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ports) != 4 {
		t.Fatalf("got %d ports", len(ports))
	}

	tests := []struct {
		path, description, driver string
	}{
		{"/dev/ttyS0", "/dev/ttyS0", ""},
		{"/dev/ttyACM0", "u-blox 8 GPS receiver", "Generic"},
		{"/dev/ttyUSB0", "FTDI FT232R USB-serial", ""},
		{"/dev/ttyUSB1", "Mystery", ""},
	}
	for i, tt := range tests {
		p := ports[i]
		if p.Path != tt.path || p.Description != tt.description || p.SuggestedDriver != tt.driver {
			t.Errorf("port %d = %+v", i, p)
		}
		if p.PortType != model.PortTypeSerial {
			t.Errorf("port %d type %s", i, p.PortType)
		}
	}
}

func TestScanListError(t *testing.T) {
	s := NewScanner(zap.NewNop())
	s.list = func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("permission denied")
	}
	if _, err := s.Scan(context.Background()); err == nil {
		t.Error("list error not reported")
	}
}
