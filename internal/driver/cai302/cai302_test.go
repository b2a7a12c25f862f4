package cai302

import (
	"fmt"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port/porttest"
)

func newTestDevice() (*Device, *porttest.Port) {
	p := porttest.New(9600, nil)
	d := New(p, model.DeviceConfig{}, zap.NewNop()).(*Device)
	return d, p
}

func TestPutCommands(t *testing.T) {
	tests := []struct {
		name string
		put  func(d *Device) error
		want string
	}{
		{"maccready", func(d *Device) error { return d.PutMacCready(2.0, operation.NewNullEnv()) }, "!g,m39\r"},
		{"maccready zero", func(d *Device) error { return d.PutMacCready(0, operation.NewNullEnv()) }, "!g,m0\r"},
		{"bugs", func(d *Device) error { return d.PutBugs(0.85, operation.NewNullEnv()) }, "!g,u85\r"},
		{"ballast", func(d *Device) error { return d.PutBallast(0.5, 1.2, operation.NewNullEnv()) }, "!g,b50\r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, p := newTestDevice()
			if err := tt.put(d); err != nil {
				t.Fatal(err)
			}
			if got := p.WrittenString(); got != tt.want {
				t.Errorf("wrote %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseW(t *testing.T) {
	d, _ := newTestDevice()
	info := &model.NMEAInfo{Clock: time.Second}

	if !d.ParseNMEA("!w,180,100,,,1500,220,,,20,50,90", info) {
		t.Fatal("!w not handled")
	}

	if !info.ExternalWindAvailable.IsValid() {
		t.Fatal("wind not provided")
	}
	if info.ExternalWind.Bearing != 0 || math.Abs(info.ExternalWind.Norm-10.0/3.6) > 1e-6 {
		t.Errorf("wind = %+v", info.ExternalWind)
	}
	if info.BaroAltitude != 500 {
		t.Errorf("baro altitude = %v", info.BaroAltitude)
	}
	if math.Abs(info.TotalEnergyVario-2*1852.0/3600) > 1e-6 {
		t.Errorf("vario = %v", info.TotalEnergyVario)
	}
	if math.Abs(info.Settings.MacCready-2*1852.0/3600) > 1e-6 {
		t.Errorf("maccready = %v", info.Settings.MacCready)
	}
	if info.Settings.BallastFraction != 0.5 || info.Settings.Bugs != 0.9 {
		t.Errorf("settings = %+v", info.Settings)
	}
}

func TestParsePCAID(t *testing.T) {
	d, _ := newTestDevice()
	info := &model.NMEAInfo{}

	if !d.ParseNMEA("$PCAID,N,812,0,0*3A", info) {
		t.Fatal("PCAID not handled")
	}
	if !info.PressureAltitudeAvailable.IsValid() || info.PressureAltitude != 812 {
		t.Errorf("pressure altitude = %v", info.PressureAltitude)
	}
	if d.ParseNMEA("$GPGGA,1", info) {
		t.Error("GPGGA handled by CAI302")
	}
}

// A value written, echoed back and written again must not drift
func TestMacCreadyQuantizationIsStable(t *testing.T) {
	for _, mc := range []float64{0.3, 1.0, 1.37, 2.5, 4.1} {
		d, p := newTestDevice()
		d.PutMacCready(mc, operation.NewNullEnv())
		first := p.WrittenString()

		var tenths uint
		fmt.Sscanf(first, "!g,m%d\r", &tenths)
		info := &model.NMEAInfo{}
		d.ParseNMEA(fmt.Sprintf("!w,,,,,,,,,%d,,", tenths), info)

		p.ResetWritten()
		d.PutMacCready(info.Settings.MacCready, operation.NewNullEnv())
		if second := p.WrittenString(); second != first {
			t.Errorf("mc %v: %q then %q", mc, first, second)
		}
	}
}

func TestEnableNMEA(t *testing.T) {
	d, p := newTestDevice()
	if err := d.EnableNMEA(operation.NewNullEnv()); err != nil {
		t.Fatal(err)
	}
	if got := p.WrittenString(); got != "\x03LOG 0\r" {
		t.Errorf("wrote %q", got)
	}
}
