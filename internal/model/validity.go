// internal/model/validity.go
package model

import "time"

// Validity records whether and when a value was last provided.
// Clocks are monotonic offsets, not wall time.
type Validity struct {
	valid bool
	last  time.Duration
}

// Update marks the value as provided at clock
func (v *Validity) Update(clock time.Duration) {
	v.valid = true
	v.last = clock
}

// Clear marks the value as absent
func (v *Validity) Clear() {
	*v = Validity{}
}

// IsValid reports whether the value is present
func (v Validity) IsValid() bool {
	return v.valid
}

// Last returns the clock of the last update
func (v Validity) Last() time.Duration {
	return v.last
}

// Modified reports whether v is newer than other
func (v Validity) Modified(other Validity) bool {
	return v.valid && (!other.valid || v.last > other.last)
}

// Expire clears the value if it is older than maxAge at clock
func (v *Validity) Expire(clock, maxAge time.Duration) bool {
	if v.valid && clock-v.last > maxAge {
		v.Clear()
		return true
	}
	return false
}

// Complement copies other into v when v is invalid
func (v *Validity) Complement(other Validity) bool {
	if !v.valid && other.valid {
		*v = other
		return true
	}
	return false
}
