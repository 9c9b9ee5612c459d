package render

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rewired-gh/circadia/internal/models"
	"github.com/rewired-gh/circadia/internal/view"
)

func curve(id string, phase models.Phase, base float64) *models.Profile {
	values := make([]float64, models.MinutesPerDay)
	for i := range values {
		values[i] = base + float64(i%120)/100
	}
	sex := models.Female
	if phase == models.PhaseMale {
		sex = models.Male
	}
	return &models.Profile{SubjectID: id, Sex: sex, Phase: phase, Metric: models.Temperature, Values: values}
}

func TestTickStep(t *testing.T) {
	tests := []struct {
		span int
		want int
	}{
		{1, 5},
		{60, 5},
		{120, 15},
		{300, 30},
		{600, 60},
		{1439, 120},
	}
	for _, tt := range tests {
		if got := TickStep(tt.span); got != tt.want {
			t.Errorf("TickStep(%d) = %d, expected %d", tt.span, got, tt.want)
		}
	}
}

func TestTicks(t *testing.T) {
	full := Ticks(0, models.LastMinute)
	if len(full) != 12 {
		t.Fatalf("Expected 12 ticks over a full day, got %d", len(full))
	}
	if full[0].Label != "00:00" || full[11].Label != "22:00" {
		t.Errorf("Unexpected labels %s .. %s", full[0].Label, full[11].Label)
	}

	zoomed := Ticks(62, 118)
	if len(zoomed) == 0 || zoomed[0].Value != 65 || zoomed[0].Label != "01:05" {
		t.Errorf("Expected first zoomed tick at 01:05, got %+v", zoomed)
	}
}

func TestBuild_NothingToDraw(t *testing.T) {
	_, err := Build(Input{Width: 800, Height: 400})
	if !errors.Is(err, ErrNothingToDraw) {
		t.Errorf("Expected ErrNothingToDraw, got %v", err)
	}
}

func TestBuild_ZoomSlicesSeries(t *testing.T) {
	in := Input{
		Profiles: []*models.Profile{curve("m1", models.PhaseMale, 37), curve("f1", models.PhaseEstrus, 38)},
		Range:    view.Range{Min: 36, Max: 40},
		Zoom:     &models.Window{Start: 100, End: 200},
		Metric:   models.Temperature,
		Width:    800,
		Height:   400,
	}
	graph, err := Build(in)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(graph.Series) != 2 {
		t.Fatalf("Expected 2 series, got %d", len(graph.Series))
	}
	if graph.XAxis.Range.GetMin() != 100 || graph.XAxis.Range.GetMax() != 200 {
		t.Errorf("Unexpected x range %v-%v", graph.XAxis.Range.GetMin(), graph.XAxis.Range.GetMax())
	}
	if len(graph.Elements) != 1 {
		t.Error("Expected a legend for a small chart")
	}
}

func TestRenderPNG(t *testing.T) {
	in := Input{
		Profiles: []*models.Profile{curve("m1", models.PhaseMale, 37), curve("f1", models.PhaseNonEstrus, 36)},
		Range:    view.Range{Min: 36 * 0.98, Max: 38.2 * 1.02},
		Metric:   models.Temperature,
		Width:    800,
		Height:   400,
	}
	var buf bytes.Buffer
	if err := RenderPNG(&buf, in); err != nil {
		t.Fatalf("RenderPNG failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("Output is not a PNG")
	}
}

func TestRenderPNG_DegenerateRange(t *testing.T) {
	in := Input{
		Profiles: []*models.Profile{curve("m1", models.PhaseMale, 0)},
		Range:    view.Range{Min: 0, Max: 0},
		Metric:   models.Activity,
		Width:    400,
		Height:   200,
	}
	var buf bytes.Buffer
	if err := RenderPNG(&buf, in); err != nil {
		t.Fatalf("RenderPNG failed on zero-width range: %v", err)
	}
}
