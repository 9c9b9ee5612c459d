// Package render draws the current view as a PNG line chart.
package render

import (
	"errors"
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/rewired-gh/circadia/internal/models"
	"github.com/rewired-gh/circadia/internal/view"
)

// ErrNothingToDraw is returned when no profile is visible
var ErrNothingToDraw = errors.New("no visible profiles to draw")

// maxLegendSeries keeps the legend from covering the plot.
const maxLegendSeries = 12

var phaseColors = map[models.Phase]drawing.Color{
	models.PhaseMale:      drawing.ColorFromHex("4682b4"), // steelblue
	models.PhaseEstrus:    drawing.ColorFromHex("dc143c"), // crimson
	models.PhaseNonEstrus: drawing.ColorFromHex("ff8c00"), // darkorange
}

// PhaseColor returns the line colour used for a phase.
func PhaseColor(p models.Phase) drawing.Color {
	if c, ok := phaseColors[p]; ok {
		return c
	}
	return chart.ColorAlternateGray
}

// Input is everything the renderer needs from the view
type Input struct {
	Profiles []*models.Profile
	Range    view.Range
	Zoom     *models.Window
	Metric   models.Metric
	Width    int
	Height   int
}

// AxisName labels the value axis for a metric.
func AxisName(m models.Metric) string {
	switch m {
	case models.Temperature:
		return "Average Temperature (°C)"
	case models.Activity:
		return "Average Activity"
	default:
		return "Average"
	}
}

// TickStep picks the minutes between x-axis ticks for a window span.
func TickStep(span int) int {
	switch {
	case span <= 60:
		return 5
	case span <= 180:
		return 15
	case span <= 360:
		return 30
	case span <= 720:
		return 60
	default:
		return 120
	}
}

// Ticks returns HH:MM ticks covering [start, end].
func Ticks(start, end models.MinuteOfDay) []chart.Tick {
	step := TickStep(int(end - start))
	first := (int(start) + step - 1) / step * step

	ticks := []chart.Tick{}
	for m := first; m <= int(end); m += step {
		ticks = append(ticks, chart.Tick{Value: float64(m), Label: models.MinuteOfDay(m).Clock()})
	}
	return ticks
}

// domain is the inclusive minute range drawn on the x axis.
func domain(zoom *models.Window) (models.MinuteOfDay, models.MinuteOfDay) {
	if zoom == nil {
		return 0, models.LastMinute
	}
	return zoom.Start, zoom.End
}

// Build assembles the chart without rendering it.
func Build(in Input) (*chart.Chart, error) {
	if len(in.Profiles) == 0 {
		return nil, ErrNothingToDraw
	}
	start, end := domain(in.Zoom)

	yMin, yMax := in.Range.Min, in.Range.Max
	if yMax <= yMin {
		yMin, yMax = yMin-1, yMin+1
	}

	xs := make([]float64, 0, int(end-start)+1)
	for m := start; m <= end; m++ {
		xs = append(xs, float64(m))
	}

	series := make([]chart.Series, 0, len(in.Profiles))
	for _, p := range in.Profiles {
		series = append(series, chart.ContinuousSeries{
			Name:    p.SubjectID + " (" + string(p.Phase) + ")",
			XValues: xs,
			YValues: p.Values[start : end+1],
			Style: chart.Style{
				StrokeColor: PhaseColor(p.Phase),
				StrokeWidth: 1,
			},
		})
	}

	graph := &chart.Chart{
		Width:      in.Width,
		Height:     in.Height,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20}},
		XAxis: chart.XAxis{
			Name:  "Time of Day",
			Range: &chart.ContinuousRange{Min: float64(start), Max: float64(end)},
			Ticks: Ticks(start, end),
		},
		YAxis: chart.YAxis{
			Name:  AxisName(in.Metric),
			Range: &chart.ContinuousRange{Min: yMin, Max: yMax},
		},
		Series: series,
	}
	if len(series) <= maxLegendSeries {
		graph.Elements = []chart.Renderable{chart.Legend(graph)}
	}
	return graph, nil
}

// RenderPNG draws the chart as PNG to w.
func RenderPNG(w io.Writer, in Input) error {
	graph, err := Build(in)
	if err != nil {
		return err
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
