// Package models defines the core domain entities for circadia.
// These models represent raw per-minute readings, aggregated daily profiles
// and the categories used to split and filter them.
//
// Terminology:
//   - Subject: one tracked animal, identified by its CSV column header.
//   - Profile: one subject's averaged 1440-point daily curve for one phase.
//   - Phase: the filter category of a profile (male, estrus or non-estrus).
package models

import (
	"errors"
	"fmt"
	"math"
)

// Sex of a recorded subject
type Sex string

const (
	Male   Sex = "male"
	Female Sex = "female"
)

// Valid reports whether s is a known sex
func (s Sex) Valid() bool {
	return s == Male || s == Female
}

// Phase is the cycle phase a profile was averaged over. It doubles as the
// filter key of the view.
type Phase string

const (
	PhaseMale      Phase = "male"
	PhaseEstrus    Phase = "estrus"
	PhaseNonEstrus Phase = "non-estrus"
)

// Phases lists every phase in display order.
var Phases = []Phase{PhaseMale, PhaseEstrus, PhaseNonEstrus}

// ParsePhase maps a filter key to a Phase.
func ParsePhase(key string) (Phase, bool) {
	for _, p := range Phases {
		if string(p) == key {
			return p, true
		}
	}
	return "", false
}

// Metric is the physiological quantity a dataset records
type Metric string

const (
	Temperature Metric = "temperature"
	Activity    Metric = "activity"
)

// Metrics lists every metric in display order.
var Metrics = []Metric{Temperature, Activity}

// ParseMetric maps a metric name to a Metric.
func ParseMetric(name string) (Metric, bool) {
	for _, m := range Metrics {
		if string(m) == name {
			return m, true
		}
	}
	return "", false
}

// Profile is one subject's averaged day for one phase. Values[m] is the mean
// reading at minute-of-day m over every qualifying day.
// Profiles are never mutated after aggregation.
type Profile struct {
	SubjectID string    `json:"subject_id"`
	Sex       Sex       `json:"sex"`
	Phase     Phase     `json:"phase"`
	Metric    Metric    `json:"metric"`
	Values    []float64 `json:"values"`
}

// Key identifies a profile within one metric.
func (p *Profile) Key() string {
	return p.SubjectID + "/" + string(p.Phase)
}

// At returns the value at minute m.
func (p *Profile) At(m MinuteOfDay) float64 {
	return p.Values[m]
}

// Validate checks that all profile fields are valid
func (p *Profile) Validate() error {
	if p.SubjectID == "" {
		return errors.New("subject ID must not be empty")
	}
	if !p.Sex.Valid() {
		return fmt.Errorf("unknown sex %q", p.Sex)
	}
	switch {
	case p.Sex == Male && p.Phase != PhaseMale:
		return fmt.Errorf("male profile must have phase %q, got %q", PhaseMale, p.Phase)
	case p.Sex == Female && p.Phase != PhaseEstrus && p.Phase != PhaseNonEstrus:
		return fmt.Errorf("female profile must have phase estrus or non-estrus, got %q", p.Phase)
	}
	if _, ok := ParseMetric(string(p.Metric)); !ok {
		return fmt.Errorf("unknown metric %q", p.Metric)
	}
	if len(p.Values) != MinutesPerDay {
		return fmt.Errorf("profile must have %d values, got %d", MinutesPerDay, len(p.Values))
	}
	for i, v := range p.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("value at minute %d is not finite", i)
		}
	}
	return nil
}
