// internal/model/declaration.go
package model

import (
	"fmt"
	"time"
)

// Waypoint is a named location
type Waypoint struct {
	Name      string   `json:"name" binding:"required"`
	Location  GeoPoint `json:"location"`
	Elevation float64  `json:"elevation"`
}

// Turnpoint is one point of a declared task
type Turnpoint struct {
	Waypoint Waypoint `json:"waypoint"`
}

// Declaration is a task to be declared to a logger
type Declaration struct {
	PilotName            string      `json:"pilot_name"`
	AircraftType         string      `json:"aircraft_type"`
	AircraftRegistration string      `json:"aircraft_registration"`
	CompetitionID        string      `json:"competition_id"`
	Turnpoints           []Turnpoint `json:"turnpoints"`
}

// Size returns the number of turnpoints
func (d *Declaration) Size() int {
	return len(d.Turnpoints)
}

// GetName returns the name of turnpoint i
func (d *Declaration) GetName(i int) string {
	return d.Turnpoints[i].Waypoint.Name
}

// GetLocation returns the location of turnpoint i
func (d *Declaration) GetLocation(i int) GeoPoint {
	return d.Turnpoints[i].Waypoint.Location
}

// Validate checks that the declaration can be sent to a logger
func (d *Declaration) Validate() error {
	if len(d.Turnpoints) < 2 {
		return fmt.Errorf("declaration needs at least 2 turnpoints, got %d", len(d.Turnpoints))
	}
	for i, tp := range d.Turnpoints {
		if !tp.Waypoint.Location.IsValid() {
			return fmt.Errorf("turnpoint %d has an invalid location", i)
		}
	}
	return nil
}

// RecordedFlightInfo describes one flight stored in a logger
type RecordedFlightInfo struct {
	Date      time.Time `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Index is the logger specific position of the flight
	Index int `json:"index"`
}

// String formats the flight the way flight lists print it
func (f RecordedFlightInfo) String() string {
	return fmt.Sprintf("%04d/%02d/%02d %02d:%02d-%02d:%02d",
		f.Date.Year(), int(f.Date.Month()), f.Date.Day(),
		f.StartTime.Hour(), f.StartTime.Minute(),
		f.EndTime.Hour(), f.EndTime.Minute())
}

// RadioFrequency is a VHF frequency in kHz
type RadioFrequency uint

// IsDefined reports whether the frequency lies in the air band
func (f RadioFrequency) IsDefined() bool {
	return f >= 118000 && f <= 137000
}
