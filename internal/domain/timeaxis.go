package domain

import (
	"fmt"
	"time"
)

// TimeUnits is the CF units string of every time coordinate written.
const TimeUnits = "hours since 1900-01-01 00:00:00.0"

// timeEpoch is the origin of TimeUnits.
var timeEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// HoursSinceEpoch converts t to the TimeUnits axis.
func HoursSinceEpoch(t time.Time) float64 {
	return t.Sub(timeEpoch).Hours()
}

// FromHoursSinceEpoch is the inverse of HoursSinceEpoch, rounded to the second.
func FromHoursSinceEpoch(h float64) time.Time {
	return timeEpoch.Add(time.Duration(h * float64(time.Hour))).Round(time.Second)
}

// Accumulation is the reporting window of a product.
type Accumulation string

const (
	Accumulation6h  Accumulation = "6h"
	Accumulation24h Accumulation = "24h"
)

// ParseAccumulation validates an accumulation name.
func ParseAccumulation(s string) (Accumulation, error) {
	switch Accumulation(s) {
	case Accumulation6h, Accumulation24h:
		return Accumulation(s), nil
	}
	return "", fmt.Errorf("accumulation must be 6h or 24h, got %q", s)
}

// Hours returns the window length.
func (a Accumulation) Hours() int {
	if a == Accumulation24h {
		return 24
	}
	return 6
}

// SubStepHours is the spacing of source sub-steps.
const SubStepHours = 6

// LeadHours returns the lead time in hours of valid-time index i.
// 6h products start at sub-step firstStep; 24h products start at 6h and step by a day.
func (a Accumulation) LeadHours(firstStep, i int) int {
	if a == Accumulation24h {
		return SubStepHours + 24*i
	}
	return SubStepHours * (firstStep + i)
}

// ValidTime returns the valid time of index i for a forecast initialised at init.
func (a Accumulation) ValidTime(init time.Time, firstStep, i int) time.Time {
	return init.Add(time.Duration(a.LeadHours(firstStep, i)) * time.Hour)
}
