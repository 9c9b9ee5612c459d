package view

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"github.com/rewired-gh/circadia/internal/models"
)

// DefaultPadding widens the value range by 2% on each side.
const DefaultPadding = 0.02

// Range is a value-axis extent
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Controller derives what is drawn from a State over a fixed profile set
type Controller struct {
	profiles      []models.Profile
	padding       float64
	defaultMetric models.Metric
	state         State
}

// NewController creates a Controller in the default state. profiles are
// shared read-only and must not be modified afterwards.
func NewController(profiles []models.Profile, defaultMetric models.Metric, padding float64) *Controller {
	if _, ok := models.ParseMetric(string(defaultMetric)); !ok {
		defaultMetric = models.Temperature
	}
	if padding < 0 {
		padding = DefaultPadding
	}
	return &Controller{
		profiles:      profiles,
		padding:       padding,
		defaultMetric: defaultMetric,
		state:         DefaultState(defaultMetric),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// ToggleFilter flips a category on or off.
func (c *Controller) ToggleFilter(key string) {
	c.state = c.state.ToggleFilter(key)
}

// Brush zooms the value axis to a minute-of-day window.
func (c *Controller) Brush(start, end models.MinuteOfDay) {
	c.state = c.state.Brush(start, end)
}

// ResetZoom clears the zoom window.
func (c *Controller) ResetZoom() {
	c.state = c.state.ResetZoom()
}

// SetMetric switches the drawn metric.
func (c *Controller) SetMetric(name string) {
	c.state = c.state.SetMetric(name)
}

// Reset restores the default state.
func (c *Controller) Reset() {
	c.state = DefaultState(c.defaultMetric)
}

// VisibleProfiles returns the profiles passing the current filters, in
// aggregation order.
func (c *Controller) VisibleProfiles() []*models.Profile {
	var out []*models.Profile
	for i := range c.profiles {
		if c.state.Shows(&c.profiles[i]) {
			out = append(out, &c.profiles[i])
		}
	}
	return out
}

func (c *Controller) metricProfiles() []*models.Profile {
	var out []*models.Profile
	for i := range c.profiles {
		if c.profiles[i].Metric == c.state.Metric {
			out = append(out, &c.profiles[i])
		}
	}
	return out
}

// ValueRange returns the padded value extent of the visible profiles, over
// the zoom window when one is set. When the selection holds no values it
// falls back to the full-day range of the current metric and reports an
// *models.EmptySelectionWarning alongside it; the range is usable either way.
func (c *Controller) ValueRange() (Range, error) {
	visible := c.VisibleProfiles()
	full := models.Window{Start: 0, End: models.MinutesPerDay}

	window := full
	if c.state.Zoom != nil {
		window = *c.state.Zoom
	}
	if r, ok := extent(visible, window); ok {
		return c.pad(r), nil
	}

	warn := &models.EmptySelectionWarning{Reason: "no visible profiles"}
	if len(visible) > 0 {
		warn.Reason = fmt.Sprintf("zoom window %s-%s holds no values", window.Start.Clock(), window.End.Clock())
		if r, ok := extent(visible, full); ok {
			return c.pad(r), warn
		}
	}
	if r, ok := extent(c.metricProfiles(), full); ok {
		return c.pad(r), warn
	}
	return Range{}, warn
}

func (c *Controller) pad(r Range) Range {
	return Range{Min: r.Min * (1 - c.padding), Max: r.Max * (1 + c.padding)}
}

func extent(profiles []*models.Profile, w models.Window) (Range, bool) {
	if w.Len() <= 0 {
		return Range{}, false
	}
	data := make(stats.Float64Data, 0, len(profiles)*w.Len())
	for _, p := range profiles {
		end := int(w.End)
		if end > len(p.Values) {
			end = len(p.Values)
		}
		if int(w.Start) >= end {
			continue
		}
		data = append(data, p.Values[w.Start:end]...)
	}
	lo, err := stats.Min(data)
	if err != nil {
		return Range{}, false
	}
	hi, err := stats.Max(data)
	if err != nil {
		return Range{}, false
	}
	return Range{Min: lo, Max: hi}, true
}

// TooltipEntry is one line's value under the cursor
type TooltipEntry struct {
	SubjectID string       `json:"subject_id"`
	Phase     models.Phase `json:"phase"`
	Value     float64      `json:"value"`
}

// Tooltip lists visible values at one minute
type Tooltip struct {
	Minute  models.MinuteOfDay `json:"minute"`
	Clock   string             `json:"clock"`
	Entries []TooltipEntry     `json:"entries"`
}

// Tooltip returns the visible values at minute m.
func (c *Controller) Tooltip(m models.MinuteOfDay) (Tooltip, error) {
	if !m.Valid() {
		return Tooltip{}, fmt.Errorf("minute %d outside 0..%d", m, models.LastMinute)
	}
	tip := Tooltip{Minute: m, Clock: m.Clock(), Entries: []TooltipEntry{}}
	for _, p := range c.VisibleProfiles() {
		tip.Entries = append(tip.Entries, TooltipEntry{SubjectID: p.SubjectID, Phase: p.Phase, Value: p.At(m)})
	}
	return tip, nil
}
