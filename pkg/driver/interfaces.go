// pkg/driver/interfaces.go
package driver

import (
	"errors"

	"glider-device-service/internal/model"
	"glider-device-service/internal/operation"
)

var (
	ErrNotSupported = errors.New("operation not supported by driver")
	ErrNoSuchDriver = errors.New("no such driver")
)

// Device is one instrument session bound to an open port. Methods taking
// an Env may block; the others must return quickly.
type Device interface {
	// Open runs the driver's initial handshake, if any
	Open(env operation.Env) error

	// LinkTimeout is called when the device stopped sending data
	LinkTimeout()

	// EnableNMEA returns the instrument to NMEA streaming mode
	EnableNMEA(env operation.Env) error

	// ParseNMEA handles a driver specific sentence; false lets the
	// generic parser try it
	ParseNMEA(line string, info *model.NMEAInfo) bool

	PutMacCready(mc float64, env operation.Env) error
	PutBugs(bugs float64, env operation.Env) error
	PutBallast(fraction, overload float64, env operation.Env) error
	PutQNH(qnh float64, env operation.Env) error
	PutVolume(volume uint, env operation.Env) error
	PutActiveFrequency(freq model.RadioFrequency, name string, env operation.Env) error
	PutStandbyFrequency(freq model.RadioFrequency, name string, env operation.Env) error

	Declare(decl model.Declaration, home *model.Waypoint, env operation.Env) error
	ReadFlightList(env operation.Env) ([]model.RecordedFlightInfo, error)
	DownloadFlight(flight model.RecordedFlightInfo, path string, env operation.Env) error

	// OnSysTicker is called every other second while the device is alive
	OnSysTicker(derived model.DerivedInfo)
}

// AbstractDevice implements Device with no-op defaults. Drivers embed it
// and override what they support.
type AbstractDevice struct{}

func (AbstractDevice) Open(env operation.Env) error                     { return nil }
func (AbstractDevice) LinkTimeout()                                     {}
func (AbstractDevice) EnableNMEA(env operation.Env) error               { return nil }
func (AbstractDevice) ParseNMEA(line string, info *model.NMEAInfo) bool { return false }

func (AbstractDevice) PutMacCready(mc float64, env operation.Env) error {
	return ErrNotSupported
}

func (AbstractDevice) PutBugs(bugs float64, env operation.Env) error {
	return ErrNotSupported
}

func (AbstractDevice) PutBallast(fraction, overload float64, env operation.Env) error {
	return ErrNotSupported
}

func (AbstractDevice) PutQNH(qnh float64, env operation.Env) error {
	return ErrNotSupported
}

func (AbstractDevice) PutVolume(volume uint, env operation.Env) error {
	return ErrNotSupported
}

func (AbstractDevice) PutActiveFrequency(freq model.RadioFrequency, name string, env operation.Env) error {
	return ErrNotSupported
}

func (AbstractDevice) PutStandbyFrequency(freq model.RadioFrequency, name string, env operation.Env) error {
	return ErrNotSupported
}

func (AbstractDevice) Declare(decl model.Declaration, home *model.Waypoint, env operation.Env) error {
	return ErrNotSupported
}

func (AbstractDevice) ReadFlightList(env operation.Env) ([]model.RecordedFlightInfo, error) {
	return nil, ErrNotSupported
}

func (AbstractDevice) DownloadFlight(flight model.RecordedFlightInfo, path string, env operation.Env) error {
	return ErrNotSupported
}

func (AbstractDevice) OnSysTicker(derived model.DerivedInfo) {}
