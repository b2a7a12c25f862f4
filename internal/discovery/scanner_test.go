package discovery

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
)

type fakeScanner struct {
	kind      string
	available bool
	ports     []*DiscoveredPort
	err       error
}

func (f *fakeScanner) Type() string      { return f.kind }
func (f *fakeScanner) IsAvailable() bool { return f.available }

func (f *fakeScanner) Scan(context.Context) ([]*DiscoveredPort, error) {
	return f.ports, f.err
}

func TestScanAll(t *testing.T) {
	sm := NewScannerManager(zap.NewNop())
	sm.RegisterScanner(&fakeScanner{kind: "usb", available: true, ports: []*DiscoveredPort{{Source: "usb"}}})
	sm.RegisterScanner(&fakeScanner{kind: "serial", available: true, ports: []*DiscoveredPort{{Source: "serial"}}})
	sm.RegisterScanner(&fakeScanner{kind: "broken", available: true, err: errors.New("boom")})
	sm.RegisterScanner(&fakeScanner{kind: "bluetooth", available: false, ports: []*DiscoveredPort{{Source: "bt"}}})

	ports := sm.ScanAll(context.Background())
	var sources []string
	for _, p := range ports {
		sources = append(sources, p.Source)
	}
	if want := []string{"serial", "usb"}; !reflect.DeepEqual(sources, want) {
		t.Errorf("sources = %v, want %v", sources, want)
	}

	if want := []string{"broken", "serial", "usb"}; !reflect.DeepEqual(sm.AvailableScanners(), want) {
		t.Errorf("AvailableScanners = %v", sm.AvailableScanners())
	}

	if _, err := sm.ScanByType(context.Background(), "bluetooth"); err == nil {
		t.Error("unavailable scanner ran")
	}
	if _, err := sm.ScanByType(context.Background(), "irda"); err == nil {
		t.Error("unknown scanner type accepted")
	}
}

func TestLookupAdapter(t *testing.T) {
	tests := []struct {
		vid, pid   uint16
		wantOK     bool
		wantDriver string
	}{
		{0x0403, 0x6001, true, ""},
		{0x1546, 0x01A8, true, "Generic"},
		{0x1234, 0x5678, false, ""},
	}

	for _, tt := range tests {
		a, ok := LookupAdapter(tt.vid, tt.pid)
		if ok != tt.wantOK || a.Driver != tt.wantDriver {
			t.Errorf("LookupAdapter(%04x, %04x) = %+v, %v", tt.vid, tt.pid, a, ok)
		}
	}
}

func TestDiscoveredPortConfig(t *testing.T) {
	p := &DiscoveredPort{PortType: model.PortTypeSerial, Path: "/dev/ttyACM0"}
	cfg, ok := p.Config(9600)
	if !ok || cfg.DriverName != "Generic" || cfg.BaudRate != 9600 {
		t.Errorf("Config = %+v, %v", cfg, ok)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("suggested config invalid: %v", err)
	}

	if _, ok := (&DiscoveredPort{Source: "usb"}).Config(9600); ok {
		t.Error("USB descriptor without path produced a config")
	}
}
