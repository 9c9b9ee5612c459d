// Package view holds the interactive view model over aggregated profiles:
// which categories are shown, which slice of the day the value axis is
// fitted to, and which metric is drawn.
//
// State is an immutable value; every transition returns a new State.
// Controller owns the one mutable reference and derives the visible profiles
// and value range from it. A Controller is single-writer and not safe for
// concurrent use.
package view

import (
	"strings"

	"github.com/rewired-gh/circadia/internal/models"
)

// FilterSet is a set of phases stored as a bitmask.
type FilterSet uint8

func phaseBit(p models.Phase) FilterSet {
	for i, known := range models.Phases {
		if known == p {
			return 1 << i
		}
	}
	return 0
}

// AllFilters enables every phase.
func AllFilters() FilterSet {
	var f FilterSet
	for _, p := range models.Phases {
		f |= phaseBit(p)
	}
	return f
}

// Has reports whether p is enabled.
func (f FilterSet) Has(p models.Phase) bool {
	bit := phaseBit(p)
	return bit != 0 && f&bit != 0
}

// Toggle flips p; unknown phases leave f unchanged.
func (f FilterSet) Toggle(p models.Phase) FilterSet {
	return f ^ phaseBit(p)
}

// Phases lists the enabled phases in display order.
func (f FilterSet) Phases() []models.Phase {
	out := make([]models.Phase, 0, len(models.Phases))
	for _, p := range models.Phases {
		if f.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

func (f FilterSet) String() string {
	parts := make([]string, 0, len(models.Phases))
	for _, p := range f.Phases() {
		parts = append(parts, string(p))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// State is the view state.
type State struct {
	Filters FilterSet
	Zoom    *models.Window // nil means the full day
	Metric  models.Metric
}

// DefaultState has every filter on, no zoom and the given metric.
func DefaultState(metric models.Metric) State {
	return State{Filters: AllFilters(), Metric: metric}
}

// ToggleFilter flips key in the active filters. Unknown keys are a no-op.
func (s State) ToggleFilter(key string) State {
	p, ok := models.ParsePhase(key)
	if !ok {
		return s
	}
	s.Filters = s.Filters.Toggle(p)
	return s
}

// Brush fits the value axis to [start, end] after clamping both ends into the
// day. An empty or inverted selection is ignored.
func (s State) Brush(start, end models.MinuteOfDay) State {
	start, end = start.Clamp(), end.Clamp()
	if start >= end {
		return s
	}
	s.Zoom = &models.Window{Start: start, End: end}
	return s
}

// ResetZoom returns to the full day.
func (s State) ResetZoom() State {
	s.Zoom = nil
	return s
}

// SetMetric switches the drawn metric. Unknown metrics are a no-op.
func (s State) SetMetric(name string) State {
	m, ok := models.ParseMetric(name)
	if !ok {
		return s
	}
	s.Metric = m
	return s
}

// Shows reports whether p passes the state's filters and metric.
func (s State) Shows(p *models.Profile) bool {
	return p.Metric == s.Metric && s.Filters.Has(p.Phase)
}
