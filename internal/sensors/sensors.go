// internal/sensors/sensors.go
package sensors

import (
	"math"
	"time"

	"go.uber.org/zap"

	"glider-device-service/internal/blackboard"
	"glider-device-service/internal/model"
)

// ConnectionState is reported by the host's location provider
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	WaitingForFix
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case WaitingForFix:
		return "waiting_for_fix"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Fix is one location update from the host's GPS
type Fix struct {
	Time           time.Time      `json:"time" binding:"required"`
	Location       model.GeoPoint `json:"location"`
	SatellitesUsed int            `json:"satellites_used"`
	Altitude       *float64       `json:"altitude,omitempty"`
	Bearing        *float64       `json:"bearing,omitempty"`
	Speed          *float64       `json:"speed,omitempty"`
	Accuracy       *float64       `json:"accuracy,omitempty"`
}

// Sensors feeds the host's own GPS and barometer into one blackboard
// slot. It has no port and no driver.
type Sensors struct {
	index  int
	board  *blackboard.Blackboard
	logger *zap.Logger

	// startDate is the UTC date of the first fix; guarded by the
	// blackboard lock
	startDate time.Time
}

// New creates the sensor feed for slot index
func New(index int, board *blackboard.Blackboard, logger *zap.Logger) *Sensors {
	return &Sensors{
		index:  index,
		board:  board,
		logger: logger.With(zap.Int("device_index", index), zap.String("driver", "internal")),
	}
}

// Index returns the blackboard slot
func (s *Sensors) Index() int {
	return s.index
}

func (s *Sensors) SetConnected(state ConnectionState) {
	s.board.UpdateRealState(s.index, func(info *model.NMEAInfo) {
		switch state {
		case Disconnected:
			info.Alive.Clear()
			info.LocationAvailable.Clear()
		case WaitingForFix:
			info.Alive.Update(info.Clock)
			info.GPS.Internal = true
			info.LocationAvailable.Clear()
		case Connected:
			info.Alive.Update(info.Clock)
			info.GPS.Internal = true
		}
	})
	s.logger.Debug("Internal GPS state", zap.Stringer("state", state))
	s.board.ScheduleMerge()
}

func (s *Sensors) SetLocation(fix Fix) {
	utc := fix.Time.UTC()

	s.board.UpdateRealState(s.index, func(info *model.NMEAInfo) {
		info.Alive.Update(info.Clock)

		// time is counted from midnight of the first date so that it
		// keeps growing past midnight UTC
		if s.startDate.IsZero() || !info.TimeAvailable {
			s.startDate = dateOf(utc)
		}
		info.ProvideTime(utc.Sub(s.startDate).Seconds())
		info.ProvideDate(utc)
		info.DateTimeUTC = utc

		info.GPS.SatellitesUsed = fix.SatellitesUsed
		info.GPS.SatellitesUsedAvailable.Update(info.Clock)
		info.GPS.Real = true
		info.GPS.Internal = true
		info.GPS.FixQuality = model.FixQualityGPS
		info.GPS.FixQualityAvailable.Update(info.Clock)

		info.Location = fix.Location
		info.LocationAvailable.Update(info.Clock)

		if fix.Altitude != nil {
			info.GPSAltitude = *fix.Altitude
			info.GPSAltitudeAvailable.Update(info.Clock)
		} else {
			info.GPSAltitudeAvailable.Clear()
		}

		if fix.Bearing != nil {
			info.Track = math.Mod(*fix.Bearing+360, 360)
			info.TrackAvailable.Update(info.Clock)
		} else {
			info.TrackAvailable.Clear()
		}

		if fix.Speed != nil {
			info.GroundSpeed = *fix.Speed
			info.GroundSpeedAvailable.Update(info.Clock)
		}

		if fix.Accuracy != nil {
			info.GPS.HDOP = *fix.Accuracy
		}
	})
	s.board.ScheduleMerge()
}

func (s *Sensors) SetBarometricPressure(hpa float64) {
	s.board.UpdateRealState(s.index, func(info *model.NMEAInfo) {
		info.ProvideStaticPressure(hpa)
	})
	s.board.ScheduleMerge()
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
