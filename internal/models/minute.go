package models

import (
	"fmt"
	"time"
)

// MinutesPerDay is the number of minute slots in a daily profile.
const MinutesPerDay = 1440

// LastMinute is the highest valid minute-of-day.
const LastMinute MinuteOfDay = MinutesPerDay - 1

// MinuteOfDay counts minutes since local midnight (0..1439).
type MinuteOfDay int

// Valid reports whether m lies within one day
func (m MinuteOfDay) Valid() bool {
	return m >= 0 && m <= LastMinute
}

// Clamp pins m into [0, LastMinute].
func (m MinuteOfDay) Clamp() MinuteOfDay {
	if m < 0 {
		return 0
	}
	if m > LastMinute {
		return LastMinute
	}
	return m
}

// Clock formats m as HH:MM.
func (m MinuteOfDay) Clock() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// On returns the wall-clock time of m on the day of ref.
func (m MinuteOfDay) On(ref time.Time) time.Time {
	y, mo, d := ref.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, ref.Location()).Add(time.Duration(m) * time.Minute)
}

// MinuteOf splits an absolute minute index into a 1-based day number and the
// minute within that day.
func MinuteOf(absolute int) (day int, minute MinuteOfDay) {
	return absolute/MinutesPerDay + 1, MinuteOfDay(absolute % MinutesPerDay)
}

// Window is a minute-of-day interval [Start, End]. Slicing profile values
// with it is half-open: values[Start:End].
type Window struct {
	Start MinuteOfDay `json:"start"`
	End   MinuteOfDay `json:"end"`
}

// Len is the number of minutes covered by values[Start:End].
func (w Window) Len() int {
	return int(w.End - w.Start)
}

// Contains reports whether m falls inside the half-open window.
func (w Window) Contains(m MinuteOfDay) bool {
	return m >= w.Start && m < w.End
}
