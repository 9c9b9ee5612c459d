// Package aggregator collapses multi-day minute recordings into daily profiles.
//
// Each row of a recording is one absolute minute. Row i belongs to day
// i/1440+1 (1-based) and minute-of-day i%1440. For every subject the
// aggregator keeps one running sum per phase and minute-of-day, plus a count
// of days per phase, and divides once at the end:
//
//	values[m] = Σ reading[d, m] over days d in phase p / days in phase p
//
// Males are never split and are divided by the total day count. Females are
// split by an estrus rule; a phase with no qualifying days produces no profile.
package aggregator

import (
	"fmt"
	"sort"

	"github.com/rewired-gh/circadia/internal/models"
)

// Default estrus schedule: day 2 of the recording starts a 4-day cycle.
const (
	DefaultCycleLength = 4
	DefaultCycleOffset = 2
	DefaultDays        = 14
)

// PhaseRule classifies a 1-based day index into a phase.
type PhaseRule interface {
	Phase(day int) models.Phase
	// Split reports whether the rule produces more than one phase. Unsplit
	// rules divide by the total day count.
	Split() bool
}

// NoSplit tags every day with a single phase.
type NoSplit struct {
	Tag models.Phase
}

func (r NoSplit) Phase(int) models.Phase { return r.Tag }
func (r NoSplit) Split() bool            { return false }

// EstrusCycle marks day d as estrus iff (d - Offset) mod Length == 0.
// The default schedule is a fixed domain constant carried over from the
// recording protocol, not derived from the readings.
type EstrusCycle struct {
	Length int
	Offset int
}

func (r EstrusCycle) Phase(day int) models.Phase {
	if r.Length <= 0 {
		return models.PhaseNonEstrus
	}
	mod := (day - r.Offset) % r.Length
	if mod < 0 {
		mod += r.Length
	}
	if mod == 0 {
		return models.PhaseEstrus
	}
	return models.PhaseNonEstrus
}

func (r EstrusCycle) Split() bool { return true }

// EstrusDays lists the estrus days among 1..days.
func (r EstrusCycle) EstrusDays(days int) []int {
	var out []int
	for d := 1; d <= days; d++ {
		if r.Phase(d) == models.PhaseEstrus {
			out = append(out, d)
		}
	}
	return out
}

// Options configures an Aggregator
type Options struct {
	// ExpectedDays pins the recording length. Zero accepts any whole number of days.
	ExpectedDays int
	CycleLength  int
	CycleOffset  int
}

// DefaultOptions returns the 14-day, 4-day-cycle setup.
func DefaultOptions() Options {
	return Options{
		ExpectedDays: DefaultDays,
		CycleLength:  DefaultCycleLength,
		CycleOffset:  DefaultCycleOffset,
	}
}

// Aggregator turns raw rows into profiles
type Aggregator struct {
	opts         Options
	expectedDays int
	rules        map[models.Sex]PhaseRule
}

// New creates an Aggregator with the male rule unsplit and the female rule
// set to the configured estrus cycle.
func New(opts Options) *Aggregator {
	return &Aggregator{
		opts:         opts,
		expectedDays: opts.ExpectedDays,
		rules: map[models.Sex]PhaseRule{
			models.Male:   NoSplit{Tag: models.PhaseMale},
			models.Female: EstrusCycle{Length: opts.CycleLength, Offset: opts.CycleOffset},
		},
	}
}

// Options returns the settings the Aggregator was built with.
func (a *Aggregator) Options() Options {
	return a.opts
}

// Rule returns the phase rule applied to sex.
func (a *Aggregator) Rule(sex models.Sex) PhaseRule {
	return a.rules[sex]
}

// Aggregate averages rows for subjects of the given sex. Subjects are
// emitted in sorted ID order since bare rows carry no column order.
func (a *Aggregator) Aggregate(rows []models.RawSample, sex models.Sex) ([]models.Profile, error) {
	if len(rows) == 0 {
		return nil, &models.MalformedDatasetError{Reason: "no rows"}
	}
	subjects := make([]string, 0, len(rows[0]))
	for id := range rows[0] {
		subjects = append(subjects, id)
	}
	sort.Strings(subjects)
	return a.aggregate("", rows, subjects, sex, "")
}

// AggregateDataset averages a loaded dataset, keeping its column order and
// stamping its metric on every profile.
func (a *Aggregator) AggregateDataset(ds *models.Dataset) ([]models.Profile, error) {
	subjects := ds.Subjects
	if len(subjects) == 0 && len(ds.Rows) > 0 {
		for id := range ds.Rows[0] {
			subjects = append(subjects, id)
		}
		sort.Strings(subjects)
	}
	return a.aggregate(ds.Name, ds.Rows, subjects, ds.Sex, ds.Metric)
}

type accumulator struct {
	sums [][models.MinutesPerDay]float64 // indexed like phases
}

func (a *Aggregator) aggregate(name string, rows []models.RawSample, subjects []string, sex models.Sex, metric models.Metric) ([]models.Profile, error) {
	rule, ok := a.rules[sex]
	if !ok {
		return nil, fmt.Errorf("no phase rule for sex %q", sex)
	}
	if err := a.checkShape(name, rows, subjects); err != nil {
		return nil, err
	}

	phases := []models.Phase{rule.Phase(1)}
	if rule.Split() {
		phases = []models.Phase{models.PhaseEstrus, models.PhaseNonEstrus}
	}
	phaseIndex := make(map[models.Phase]int, len(phases))
	for i, p := range phases {
		phaseIndex[p] = i
	}

	totalDays := len(rows) / models.MinutesPerDay
	dayCounts := make([]int, len(phases))
	for d := 1; d <= totalDays; d++ {
		dayCounts[phaseIndex[rule.Phase(d)]]++
	}

	accs := make(map[string]*accumulator, len(subjects))
	for _, id := range subjects {
		accs[id] = &accumulator{sums: make([][models.MinutesPerDay]float64, len(phases))}
	}

	for i, row := range rows {
		day, minute := models.MinuteOf(i)
		pi := phaseIndex[rule.Phase(day)]
		for _, id := range subjects {
			accs[id].sums[pi][minute] += row[id]
		}
	}

	var profiles []models.Profile
	for _, id := range subjects {
		for pi, phase := range phases {
			divisor := dayCounts[pi]
			if !rule.Split() {
				divisor = totalDays
			}
			if divisor == 0 {
				continue
			}
			values := make([]float64, models.MinutesPerDay)
			for m := range values {
				values[m] = accs[id].sums[pi][m] / float64(divisor)
			}
			profiles = append(profiles, models.Profile{
				SubjectID: id,
				Sex:       sex,
				Phase:     phase,
				Metric:    metric,
				Values:    values,
			})
		}
	}
	return profiles, nil
}

func (a *Aggregator) checkShape(name string, rows []models.RawSample, subjects []string) error {
	if len(rows) == 0 || len(rows)%models.MinutesPerDay != 0 {
		return &models.MalformedDatasetError{
			Dataset: name,
			Reason:  fmt.Sprintf("row count %d is not a positive multiple of %d", len(rows), models.MinutesPerDay),
		}
	}
	if a.expectedDays > 0 && len(rows) != a.expectedDays*models.MinutesPerDay {
		return &models.MalformedDatasetError{
			Dataset: name,
			Reason:  fmt.Sprintf("expected %d days, got %d", a.expectedDays, len(rows)/models.MinutesPerDay),
		}
	}
	if len(subjects) == 0 {
		return &models.MalformedDatasetError{Dataset: name, Reason: "no subject columns"}
	}
	for i, row := range rows {
		if len(row) != len(subjects) {
			return &models.MalformedDatasetError{
				Dataset: name,
				Reason:  fmt.Sprintf("row %d has %d subjects, expected %d", i, len(row), len(subjects)),
			}
		}
		for _, id := range subjects {
			if _, ok := row[id]; !ok {
				return &models.MalformedDatasetError{
					Dataset: name,
					Reason:  fmt.Sprintf("row %d is missing subject %s", i, id),
				}
			}
		}
	}
	return nil
}
