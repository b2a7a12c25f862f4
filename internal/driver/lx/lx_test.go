package lx

import (
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/nmea"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port/porttest"
)

func TestLXWP0(t *testing.T) {
	p := porttest.New(9600, nil)
	d := New(p, model.DeviceConfig{}, zap.NewNop())
	info := &model.NMEAInfo{Clock: 5 * time.Second}

	if !d.ParseNMEA("$LXWP0,Y,100.5,500.0,1.5,,,,,,90,270,20", info) {
		t.Fatal("LXWP0 not handled")
	}

	if !info.AirspeedAvailable.IsValid() || math.Abs(info.TrueAirspeed-100.5/3.6) > 1e-6 {
		t.Errorf("TAS = %v", info.TrueAirspeed)
	}
	if !info.PressureAltitudeAvailable.IsValid() || info.PressureAltitude != 500 {
		t.Errorf("pressure altitude = %v", info.PressureAltitude)
	}
	if !info.TotalEnergyVarioAvailable.IsValid() || info.TotalEnergyVario != 1.5 {
		t.Errorf("vario = %v", info.TotalEnergyVario)
	}
	if !info.ExternalWindAvailable.IsValid() || info.ExternalWind.Bearing != 270 ||
		math.Abs(info.ExternalWind.Norm-20/3.6) > 1e-6 {
		t.Errorf("wind = %+v", info.ExternalWind)
	}

	// nothing else is touched
	tas, windSpeed := 100.5, 20.0
	want := model.NMEAInfo{Clock: 5 * time.Second}
	want.ProvidePressureAltitude(500)
	want.ProvideTrueAirspeedWithAltitude(tas*nmea.KPHToMetersPerSecond, 500)
	want.ProvideTotalEnergyVario(1.5)
	want.ProvideExternalWind(model.SpeedVector{Bearing: 270, Norm: windSpeed * nmea.KPHToMetersPerSecond})
	if *info != want {
		t.Errorf("LXWP0 state = %+v, want %+v", *info, want)
	}
}

func TestCondorWindIsReversed(t *testing.T) {
	d := NewCondor(porttest.New(9600, nil), model.DeviceConfig{}, zap.NewNop())
	info := &model.NMEAInfo{}

	d.ParseNMEA("$LXWP0,N,120,800,0.5,,,,,,90,90,36", info)
	if info.ExternalWind.Bearing != 270 {
		t.Errorf("wind bearing = %v, want 270", info.ExternalWind.Bearing)
	}
	if !info.GPS.Simulator {
		t.Error("Condor data not marked as simulated")
	}
}

func TestLXWP2(t *testing.T) {
	d := New(porttest.New(9600, nil), model.DeviceConfig{}, zap.NewNop())
	info := &model.NMEAInfo{}

	if !d.ParseNMEA("$LXWP2,1.5,1.10,20,1.0,2.0,3.0,5", info) {
		t.Fatal("LXWP2 not handled")
	}
	if info.Settings.MacCready != 1.5 || info.Settings.BallastOverload != 1.1 {
		t.Errorf("settings = %+v", info.Settings)
	}
	if math.Abs(info.Settings.Bugs-0.8) > 1e-9 {
		t.Errorf("bugs = %v, want 0.8", info.Settings.Bugs)
	}
}

func TestInfoSentencesAccepted(t *testing.T) {
	d := New(porttest.New(9600, nil), model.DeviceConfig{}, zap.NewNop())
	for _, line := range []string{"$LXWP1,LX1600,123,1.0,2.0", "$LXWP3,0,1,2,3,4,5,LS8,0"} {
		info := &model.NMEAInfo{}
		if !d.ParseNMEA(line, info) {
			t.Errorf("%s not handled", line)
		}
		if *info != (model.NMEAInfo{}) {
			t.Errorf("%s modified state", line)
		}
	}
	if d.ParseNMEA("$GPRMC,1", &model.NMEAInfo{}) {
		t.Error("GPRMC handled by LX")
	}
}

func TestPutSettings(t *testing.T) {
	p := porttest.New(9600, nil)
	d := New(p, model.DeviceConfig{}, zap.NewNop())
	env := operation.NewNullEnv()

	d.PutMacCready(2.0, env)
	d.PutBugs(0.9, env)
	d.PutBallast(0.5, 1.25, env)

	lines := strings.Split(strings.TrimSpace(p.WrittenString()), "\r\n")
	want := []string{"$PFLX2,2.0,,,,,,*", "$PFLX2,,,10,,,,*", "$PFLX2,,1.25,,,,,*"}
	if len(lines) != len(want) {
		t.Fatalf("wrote %q", p.WrittenString())
	}
	for i := range want {
		if !strings.HasPrefix(lines[i], want[i]) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], want[i])
		}
	}
}
