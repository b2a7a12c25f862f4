package nmea

import (
	"math"
	"testing"
	"time"

	"glider-device-service/internal/model"
)

const (
	ggaSentence = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	rmcSentence = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
)

func TestVerifyChecksum(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"valid gga", ggaSentence, true},
		{"valid rmc", rmcSentence, true},
		{"lowercase hex", "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6a", true},
		{"corrupted checksum digit", "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*46", false},
		{"corrupted payload", "$GPGGA,123519,4807.038,N,01131.000,E,1,09,0.9,545.4,M,46.9,M,,*47", false},
		{"missing digits", "$GPGGA,1*", false},
		{"no delimiter", "$GPGGA,1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyChecksum(tt.line); got != tt.want {
				t.Errorf("VerifyChecksum(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	if got, want := Format("PFLAC,S,PILOT,Max"), "$PFLAC,S,PILOT,Max*3D\r\n"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestInputLine(t *testing.T) {
	in := NewInputLine("$LXWP0,Y,100.5,,abc,-3,7f*12")

	if tag := in.Read(); tag != "$LXWP0" {
		t.Fatalf("tag = %q", tag)
	}
	in.Skip()

	if v, ok := in.ReadFloat(); !ok || v != 100.5 {
		t.Errorf("ReadFloat() = %v %v", v, ok)
	}

	dst := 42.0
	if in.ReadChecked(&dst) || dst != 42 {
		t.Errorf("empty field changed destination to %v", dst)
	}
	if in.ReadChecked(&dst) || dst != 42 {
		t.Errorf("malformed field changed destination to %v", dst)
	}

	if v, ok := in.ReadInt(); !ok || v != -3 {
		t.Errorf("ReadInt() = %v %v", v, ok)
	}
	if v, ok := in.ReadHex(); !ok || v != 0x7f {
		t.Errorf("ReadHex() = %v %v", v, ok)
	}
	if _, ok := in.ReadInt(); ok {
		t.Error("read past the end succeeded")
	}
}

func TestParserGGA(t *testing.T) {
	p := NewParser()
	var info model.NMEAInfo
	info.UpdateClock(time.Second)

	if !p.ParseLine(ggaSentence, &info) {
		t.Fatal("GGA not handled")
	}

	if !info.LocationAvailable.IsValid() {
		t.Fatal("location not available")
	}
	if math.Abs(info.Location.Latitude-(48+7.038/60)) > 1e-9 {
		t.Errorf("latitude = %v", info.Location.Latitude)
	}
	if math.Abs(info.Location.Longitude-(11+31.0/60)) > 1e-9 {
		t.Errorf("longitude = %v", info.Location.Longitude)
	}
	if info.GPS.SatellitesUsed != 8 || info.GPS.HDOP != 0.9 {
		t.Errorf("gps = %+v", info.GPS)
	}
	if info.GPSAltitude != 545.4 {
		t.Errorf("altitude = %v", info.GPSAltitude)
	}
	if info.Time != 12*3600+35*60+19 {
		t.Errorf("time = %v", info.Time)
	}
}

func TestParserRMC(t *testing.T) {
	p := NewParser()
	var info model.NMEAInfo

	if !p.ParseLine(rmcSentence, &info) {
		t.Fatal("RMC not handled")
	}
	if !info.DateAvailable || info.DateTimeUTC.Year() != 1994 || info.DateTimeUTC.Month() != time.March {
		t.Errorf("date = %v", info.DateTimeUTC)
	}
	if math.Abs(info.GroundSpeed-22.4*KnotsToMetersPerSecond) > 1e-9 {
		t.Errorf("ground speed = %v", info.GroundSpeed)
	}
	if !info.TrackAvailable.IsValid() || info.Track != 84.4 {
		t.Errorf("track = %v", info.Track)
	}
}

func TestParserRejectsBadChecksum(t *testing.T) {
	p := NewParser()
	var info model.NMEAInfo

	corrupted := ggaSentence[:len(ggaSentence)-1] + "8"
	if p.ParseLine(corrupted, &info) {
		t.Error("corrupted sentence accepted")
	}
	if info != (model.NMEAInfo{}) {
		t.Error("corrupted sentence modified state")
	}

	p.IgnoreChecksum = true
	if !p.ParseLine(corrupted, &info) {
		t.Error("sentence rejected with checksum disabled")
	}
}

func TestParserIgnoresUnknown(t *testing.T) {
	p := NewParser()
	var info model.NMEAInfo

	for _, line := range []string{"$GPXYZ,1,2,3", "$PXYZ,1", "garbage", ""} {
		if p.ParseLine(line, &info) {
			t.Errorf("ParseLine(%q) = true", line)
		}
	}
}

func TestParserMidnightRollover(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{
			name: "gga without date",
			lines: []string{
				Format("GPGGA,235959.900,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"),
				Format("GPGGA,000000.100,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"),
			},
		},
		{
			name: "rmc with advancing date",
			lines: []string{
				Format("GPRMC,235959.900,A,4807.038,N,01131.000,E,022.4,084.4,230394,,"),
				Format("GPRMC,000000.100,A,4807.038,N,01131.000,E,022.4,084.4,240394,,"),
			},
		},
		{
			name: "rmc with stale date",
			lines: []string{
				Format("GPRMC,235959.900,A,4807.038,N,01131.000,E,022.4,084.4,230394,,"),
				Format("GPRMC,000000.100,A,4807.038,N,01131.000,E,022.4,084.4,230394,,"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			var info model.NMEAInfo
			var times []float64
			for _, line := range tt.lines {
				if !p.ParseLine(line, &info) {
					t.Fatalf("ParseLine(%q) = false", line)
				}
				times = append(times, info.Time)
			}

			if times[1] <= times[0] {
				t.Errorf("time went backwards: %v", times)
			}
			if math.Abs(times[1]-times[0]-0.2) > 1e-6 {
				t.Errorf("time step = %v, want 0.2", times[1]-times[0])
			}
		})
	}
}

func TestParserSmallRegressionIsNotRollover(t *testing.T) {
	p := NewParser()
	var info model.NMEAInfo

	p.ParseLine(Format("GPGGA,120010,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"), &info)
	p.ParseLine(Format("GPGGA,120009,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"), &info)

	if info.Time != 12*3600+9 {
		t.Errorf("time = %v, out of order sentence must not add a day", info.Time)
	}
}
