// internal/model/settings.go
package model

import (
	"math"
	"time"
)

// ExternalSettings holds pilot settings reported by or sent to an instrument
type ExternalSettings struct {
	MacCready          float64  `json:"mac_cready"`
	MacCreadyAvailable Validity `json:"-"`

	BallastFraction          float64  `json:"ballast_fraction"`
	BallastFractionAvailable Validity `json:"-"`

	BallastOverload          float64  `json:"ballast_overload"`
	BallastOverloadAvailable Validity `json:"-"`

	// Bugs is the remaining performance, 1 meaning clean
	Bugs          float64  `json:"bugs"`
	BugsAvailable Validity `json:"-"`

	// QNH in hPa
	QNH          float64  `json:"qnh"`
	QNHAvailable Validity `json:"-"`

	Volume          uint     `json:"volume"`
	VolumeAvailable Validity `json:"-"`
}

// Clear drops every setting
func (s *ExternalSettings) Clear() {
	*s = ExternalSettings{}
}

func (s *ExternalSettings) ProvideMacCready(value float64, clock time.Duration) bool {
	if s.CompareMacCready(value) {
		return false
	}
	s.MacCready = value
	s.MacCreadyAvailable.Update(clock)
	return true
}

func (s *ExternalSettings) ProvideBallastFraction(value float64, clock time.Duration) bool {
	if s.CompareBallastFraction(value) {
		return false
	}
	s.BallastFraction = value
	s.BallastFractionAvailable.Update(clock)
	return true
}

func (s *ExternalSettings) ProvideBallastOverload(value float64, clock time.Duration) bool {
	if s.CompareBallastOverload(value) {
		return false
	}
	s.BallastOverload = value
	s.BallastOverloadAvailable.Update(clock)
	return true
}

func (s *ExternalSettings) ProvideBugs(value float64, clock time.Duration) bool {
	if s.CompareBugs(value) {
		return false
	}
	s.Bugs = value
	s.BugsAvailable.Update(clock)
	return true
}

func (s *ExternalSettings) ProvideQNH(value float64, clock time.Duration) bool {
	if s.CompareQNH(value) {
		return false
	}
	s.QNH = value
	s.QNHAvailable.Update(clock)
	return true
}

func (s *ExternalSettings) ProvideVolume(value uint, clock time.Duration) bool {
	if s.CompareVolume(value) {
		return false
	}
	s.Volume = value
	s.VolumeAvailable.Update(clock)
	return true
}

// Compare helpers tolerate the precision instruments store values with.

func (s ExternalSettings) CompareMacCready(value float64) bool {
	return s.MacCreadyAvailable.IsValid() && math.Abs(s.MacCready-value) <= 0.05
}

func (s ExternalSettings) CompareBallastFraction(value float64) bool {
	return s.BallastFractionAvailable.IsValid() && math.Abs(s.BallastFraction-value) <= 0.01
}

func (s ExternalSettings) CompareBallastOverload(value float64) bool {
	return s.BallastOverloadAvailable.IsValid() && math.Abs(s.BallastOverload-value) <= 0.01
}

func (s ExternalSettings) CompareBugs(value float64) bool {
	return s.BugsAvailable.IsValid() && math.Abs(s.Bugs-value) <= 0.01
}

func (s ExternalSettings) CompareQNH(value float64) bool {
	return s.QNHAvailable.IsValid() && math.Abs(s.QNH-value) <= 0.5
}

func (s ExternalSettings) CompareVolume(value uint) bool {
	return s.VolumeAvailable.IsValid() && s.Volume == value
}

// Complement takes every field from other that is newer than ours
func (s *ExternalSettings) Complement(other ExternalSettings) {
	if other.MacCreadyAvailable.Modified(s.MacCreadyAvailable) {
		s.MacCready = other.MacCready
		s.MacCreadyAvailable = other.MacCreadyAvailable
	}
	if other.BallastFractionAvailable.Modified(s.BallastFractionAvailable) {
		s.BallastFraction = other.BallastFraction
		s.BallastFractionAvailable = other.BallastFractionAvailable
	}
	if other.BallastOverloadAvailable.Modified(s.BallastOverloadAvailable) {
		s.BallastOverload = other.BallastOverload
		s.BallastOverloadAvailable = other.BallastOverloadAvailable
	}
	if other.BugsAvailable.Modified(s.BugsAvailable) {
		s.Bugs = other.Bugs
		s.BugsAvailable = other.BugsAvailable
	}
	if other.QNHAvailable.Modified(s.QNHAvailable) {
		s.QNH = other.QNH
		s.QNHAvailable = other.QNHAvailable
	}
	if other.VolumeAvailable.Modified(s.VolumeAvailable) {
		s.Volume = other.Volume
		s.VolumeAvailable = other.VolumeAvailable
	}
}

// EliminateRedundant clears every field that only echoes a value we sent
// to the device or repeats what the device reported last time.
func (s *ExternalSettings) EliminateRedundant(sent, last ExternalSettings) {
	if s.MacCreadyAvailable.IsValid() &&
		(sent.CompareMacCready(s.MacCready) || last.CompareMacCready(s.MacCready)) {
		s.MacCreadyAvailable.Clear()
	}
	if s.BallastFractionAvailable.IsValid() &&
		(sent.CompareBallastFraction(s.BallastFraction) || last.CompareBallastFraction(s.BallastFraction)) {
		s.BallastFractionAvailable.Clear()
	}
	if s.BallastOverloadAvailable.IsValid() &&
		(sent.CompareBallastOverload(s.BallastOverload) || last.CompareBallastOverload(s.BallastOverload)) {
		s.BallastOverloadAvailable.Clear()
	}
	if s.BugsAvailable.IsValid() &&
		(sent.CompareBugs(s.Bugs) || last.CompareBugs(s.Bugs)) {
		s.BugsAvailable.Clear()
	}
	if s.QNHAvailable.IsValid() &&
		(sent.CompareQNH(s.QNH) || last.CompareQNH(s.QNH)) {
		s.QNHAvailable.Clear()
	}
	if s.VolumeAvailable.IsValid() &&
		(sent.CompareVolume(s.Volume) || last.CompareVolume(s.Volume)) {
		s.VolumeAvailable.Clear()
	}
}
