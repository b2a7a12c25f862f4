// internal/driver/flarm/declare.go
package flarm

import (
	"fmt"
	"math"

	"glider-device-service/internal/model"
	"glider-device-service/internal/operation"
)

func (d *Device) Declare(decl model.Declaration, home *model.Waypoint, env operation.Env) error {
	if err := d.TextMode(env); err != nil {
		return err
	}

	if err := d.declareInternal(decl, env); err != nil {
		d.setMode(ModeUnknown)
		return err
	}
	return nil
}

func (d *Device) declareInternal(decl model.Declaration, env operation.Env) error {
	size := uint(decl.Size())

	env.SetProgressRange(6 + size)
	env.SetProgressPosition(0)

	steps := []struct{ key, value string }{
		{"PILOT", decl.PilotName},
		{"GLIDERID", decl.AircraftRegistration},
		{"GLIDERTYPE", decl.AircraftType},
		{"NEWTASK", "Task"},
		{"ADDWP", "0000000N,00000000E,TAKEOFF"},
	}
	for i, step := range steps {
		if err := d.SetConfig(step.key, step.value, env); err != nil {
			return err
		}
		env.SetProgressPosition(uint(i + 1))
	}

	for i := 0; i < decl.Size(); i++ {
		if err := d.SetConfig("ADDWP", formatWaypoint(decl.GetLocation(i), decl.GetName(i)), env); err != nil {
			return err
		}
		env.SetProgressPosition(6 + uint(i))
	}

	if err := d.SetConfig("ADDWP", "0000000N,00000000E,LANDING", env); err != nil {
		return err
	}
	env.SetProgressPosition(6 + size)

	// the new declaration becomes active after a restart
	return d.Restart()
}

// formatWaypoint renders DDMMmmmN,DDDMMmmmE,name with thousandths of a minute
func formatWaypoint(location model.GeoPoint, name string) string {
	latDeg, latMin, ns := splitDegrees(location.Latitude, 'N', 'S')
	lonDeg, lonMin, ew := splitDegrees(location.Longitude, 'E', 'W')
	return fmt.Sprintf("%02d%05.0f%c,%03d%05.0f%c,%s",
		latDeg, latMin, ns, lonDeg, lonMin, ew, name)
}

func splitDegrees(value float64, positive, negative byte) (int, float64, byte) {
	hemisphere := positive
	if value < 0 {
		hemisphere = negative
		value = -value
	}
	degrees := math.Floor(value)
	return int(degrees), (value - degrees) * 60 * 1000, hemisphere
}
