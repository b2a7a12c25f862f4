// internal/driver/vega/vega.go
package vega

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/nmea"
	"glider-device-service/internal/operation"
	"glider-device-service/internal/port"
	"glider-device-service/pkg/driver"
)

const standardQNH = 1013.25

// Device talks to a Vega intelligent variometer
type Device struct {
	driver.AbstractDevice

	port   port.Port
	logger *zap.Logger

	detected atomic.Bool
	qnh      atomic.Float64

	// settings received in PDVSC sentences
	settingsMu sync.Mutex
	settings   map[string]int
}

// New creates a Vega session on p
func New(p port.Port, cfg model.DeviceConfig, logger *zap.Logger) driver.Device {
	d := &Device{
		port:     p,
		logger:   logger.With(zap.String("driver", "Vega")),
		settings: make(map[string]int),
	}
	d.qnh.Store(standardQNH)
	return d
}

// Detected reports whether the Vega identified itself since the last link timeout
func (d *Device) Detected() bool {
	return d.detected.Load()
}

// SendSetting writes an integer setting; success only means it was sent
func (d *Device) SendSetting(name string, value int) error {
	return port.WriteNMEA(d.port, fmt.Sprintf("PDVSC,S,%s,%d", name, value))
}

// RequestSetting asks the Vega to report a setting without waiting for it
func (d *Device) RequestSetting(name string) error {
	return port.WriteNMEA(d.port, fmt.Sprintf("PDVSC,R,%s", name))
}

// GetSetting looks a setting up in the values received so far
func (d *Device) GetSetting(name string) (int, bool) {
	d.settingsMu.Lock()
	defer d.settingsMu.Unlock()
	value, ok := d.settings[name]
	return value, ok
}

func (d *Device) LinkTimeout() {
	d.detected.Store(false)
}

func (d *Device) PutQNH(qnh float64, env operation.Env) error {
	d.qnh.Store(qnh)
	return nil
}

func (d *Device) OnSysTicker(derived model.DerivedInfo) {
	if !d.detected.Load() {
		return
	}
	if err := d.writeSettings(derived); err != nil {
		d.logger.Debug("Failed to write vario settings", zap.Error(err))
	}
}

// writeSettings pushes MacCready, speed to fly and flight state
func (d *Device) writeSettings(derived model.DerivedInfo) error {
	circling := 0
	if derived.Circling {
		circling = 1
	}
	return port.WriteNMEA(d.port, fmt.Sprintf("PDVMC,%d,%d,%d,%d,%d",
		int(math.Round(derived.MacCready*10)),
		int(math.Round(derived.SpeedToFly*10)),
		circling,
		int(math.Round(derived.TerrainAltitude)),
		uint(math.Round(d.qnh.Load()*10)),
	))
}

func (d *Device) ParseNMEA(line string, info *model.NMEAInfo) bool {
	if strings.HasPrefix(line, "$PD") {
		d.detected.Store(true)
	}

	in := nmea.NewInputLine(line)
	switch in.Read() {
	case "$PDSWC":
		return pdswc(in, info)
	case "$PDVDV":
		return pdvdv(in, info)
	case "$PDVSC":
		return d.pdvsc(in)
	case "$PDVDS", "$PDVVT", "$PDTSM":
		// stall ratio, temperature and speech are not used
		return true
	}
	return false
}

// pdswc carries MacCready in tenths and the switch states
func pdswc(in *nmea.InputLine, info *model.NMEAInfo) bool {
	var value float64
	if in.ReadChecked(&value) {
		info.Settings.ProvideMacCready(value/10, info.Clock)
	}
	return true
}

// pdvdv carries vario and IAS in dm/s, the TAS ratio scaled by 1024,
// pressure altitude and static pressure in Pa
func pdvdv(in *nmea.InputLine, info *model.NMEAInfo) bool {
	var value float64
	if in.ReadChecked(&value) {
		info.ProvideTotalEnergyVario(value / 10)
	}

	var ias float64
	iasOK := in.ReadChecked(&ias)
	tasRatio := 1024.0
	in.ReadChecked(&tasRatio)
	if iasOK {
		ias /= 10
		info.ProvideBothAirspeeds(ias, ias*tasRatio/1024)
	}

	if in.ReadChecked(&value) {
		info.ProvidePressureAltitude(value)
	}
	if in.ReadChecked(&value) {
		info.ProvideStaticPressure(value / 100)
	}
	return true
}

// pdvsc stores a setting answer: PDVSC,A,name,value
func (d *Device) pdvsc(in *nmea.InputLine) bool {
	in.Skip()
	name := in.Read()
	if name == "" || name == "ERROR" {
		return true
	}

	value, ok := in.ReadInt()
	if !ok {
		return true
	}

	d.settingsMu.Lock()
	d.settings[name] = value
	d.settingsMu.Unlock()
	return true
}
