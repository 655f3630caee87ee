package model

import (
	"strings"
	"time"
)

// Shift is a time-of-day bucket derived from an attendance in-time.
type Shift string

const (
	ShiftMorning Shift = "morning"
	ShiftMidday  Shift = "midday"
	ShiftEvening Shift = "evening"
)

// Shift boundaries, in minutes after midnight.
const (
	morningStart = 5 * 60
	middayStart  = 11 * 60
	eveningStart = 16 * 60
)

// Shifts returns the shift enumeration in chronological order.
func Shifts() []Shift {
	return []Shift{ShiftMorning, ShiftMidday, ShiftEvening}
}

// ParseShift validates a shift name.
func ParseShift(s string) (Shift, error) {
	switch Shift(strings.ToLower(strings.TrimSpace(s))) {
	case ShiftMorning:
		return ShiftMorning, nil
	case ShiftMidday:
		return ShiftMidday, nil
	case ShiftEvening:
		return ShiftEvening, nil
	}
	return "", &InputError{Kind: KindUnknownShift, Field: "shift", Value: s, Reason: "expected morning, midday or evening"}
}

// ShiftFor derives the shift from a clock time. Morning is [05:00, 11:00),
// midday is [11:00, 16:00), everything else is evening.
func ShiftFor(in time.Time) Shift {
	m := in.Hour()*60 + in.Minute()
	switch {
	case m >= morningStart && m < middayStart:
		return ShiftMorning
	case m >= middayStart && m < eveningStart:
		return ShiftMidday
	default:
		return ShiftEvening
	}
}
