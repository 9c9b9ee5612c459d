// Command circadia-summary loads the configured recordings once, prints a
// per-profile report and optionally writes the resulting view as a PNG.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/rewired-gh/circadia/internal/aggregator"
	"github.com/rewired-gh/circadia/internal/config"
	"github.com/rewired-gh/circadia/internal/logger"
	"github.com/rewired-gh/circadia/internal/models"
	"github.com/rewired-gh/circadia/internal/pipeline"
	"github.com/rewired-gh/circadia/internal/render"
	"github.com/rewired-gh/circadia/internal/source"
	"github.com/rewired-gh/circadia/internal/view"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (defaults and environment when empty)")
	filterKeys = flag.String("filter", "", "Comma-separated phases to hide (male, estrus, non-estrus)")
	brushSpec  = flag.String("brush", "", "Zoom window as START-END minutes of day, e.g. 360-720")
	metricName = flag.String("metric", "", "Metric to show (temperature or activity)")
	pngPath    = flag.String("png", "", "Write the resulting chart to this PNG file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Data.Timeout)
	defer cancel()

	client := source.NewClient(cfg.Data.Timeout, source.ClientConfig{
		MaxRetries:     cfg.Data.MaxRetries,
		RetryDelayBase: cfg.Data.RetryDelayBase,
		MaxConcurrent:  cfg.Data.MaxConcurrentFetches,
	})
	agg := aggregator.New(aggregator.Options{
		ExpectedDays: cfg.Aggregation.ExpectedDays,
		CycleLength:  cfg.Aggregation.EstrusCycleLength,
		CycleOffset:  cfg.Aggregation.EstrusCycleOffset,
	})

	res, err := pipeline.Build(ctx, client, nil, agg, pipeline.Specs(cfg.Data))
	if err != nil {
		logger.Fatal("Failed to load recordings: %v", err)
	}

	metric, _ := models.ParseMetric(cfg.View.DefaultMetric)
	ctrl := view.NewController(res.Profiles, metric, cfg.View.Padding)
	if err := applyFlags(ctrl); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	printHeader(os.Stdout, agg, res.Days)
	printLoadErrors(res.Errors)
	printProfiles(ctrl)

	if *pngPath != "" {
		if err := writePNG(ctrl, cfg.Chart, *pngPath); err != nil {
			logger.Fatal("Failed to write chart: %v", err)
		}
		fmt.Printf("\nChart written to %s\n", *pngPath)
	}
}

// applyFlags replays the command-line view events on the controller.
func applyFlags(ctrl *view.Controller) error {
	if *metricName != "" {
		if _, ok := models.ParseMetric(*metricName); !ok {
			return fmt.Errorf("unknown metric %q", *metricName)
		}
		ctrl.SetMetric(*metricName)
	}
	if *filterKeys != "" {
		for _, key := range strings.Split(*filterKeys, ",") {
			key = strings.TrimSpace(key)
			if _, ok := models.ParsePhase(key); !ok {
				return fmt.Errorf("unknown phase %q", key)
			}
			ctrl.ToggleFilter(key)
		}
	}
	if *brushSpec != "" {
		start, end, err := parseBrush(*brushSpec)
		if err != nil {
			return err
		}
		ctrl.Brush(start, end)
	}
	return nil
}

func parseBrush(spec string) (models.MinuteOfDay, models.MinuteOfDay, error) {
	var start, end int
	if _, err := fmt.Sscanf(spec, "%d-%d", &start, &end); err != nil {
		return 0, 0, fmt.Errorf("invalid brush %q: %w", spec, err)
	}
	return models.MinuteOfDay(start), models.MinuteOfDay(end), nil
}

// printHeader reports the recording length actually loaded, which may differ
// from the configured one when any length is accepted.
func printHeader(w io.Writer, agg *aggregator.Aggregator, days int) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, "CIRCADIAN PROFILE SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "Recording length: %d days\n", days)
	if cycle, ok := agg.Rule(models.Female).(aggregator.EstrusCycle); ok {
		fmt.Fprintf(w, "Estrus days: %v\n", cycle.EstrusDays(days))
	}
}

func printLoadErrors(errs []pipeline.LoadError) {
	if len(errs) == 0 {
		return
	}
	fmt.Println("\nSkipped datasets:")
	for _, e := range errs {
		fmt.Printf("  - %v\n", e)
	}
}

// printProfiles lists every visible profile with its stats over the
// current window.
func printProfiles(ctrl *view.Controller) {
	s := ctrl.State()
	window := models.Window{Start: 0, End: models.MinutesPerDay}
	if s.Zoom != nil {
		window = *s.Zoom
	}

	last := window.End.Clamp()
	fmt.Printf("\nMetric: %s | Filters: %s | Window: %s-%s\n",
		s.Metric, s.Filters, window.Start.Clock(), last.Clock())
	fmt.Println(strings.Repeat("-", 80))

	visible := ctrl.VisibleProfiles()
	if len(visible) == 0 {
		fmt.Println("  (no visible profiles)")
	}
	fmt.Printf("  %-16s %-12s %10s %10s %10s\n", "Subject", "Phase", "Mean", "Min", "Max")
	for _, p := range visible {
		data := stats.Float64Data(p.Values[window.Start:window.End])
		mean, _ := data.Mean()
		lo, _ := data.Min()
		hi, _ := data.Max()
		fmt.Printf("  %-16s %-12s %10.3f %10.3f %10.3f\n", p.SubjectID, p.Phase, mean, lo, hi)
	}

	rng, err := ctrl.ValueRange()
	if err != nil {
		fmt.Printf("\nWarning: %v\n", err)
	}
	fmt.Printf("\nValue range: [%.3f, %.3f]\n", rng.Min, rng.Max)
}

// writePNG renders the current view and writes it to path. Nothing is
// written when rendering fails.
func writePNG(ctrl *view.Controller, chart config.ChartConfig, path string) error {
	s := ctrl.State()
	rng, _ := ctrl.ValueRange()

	var buf bytes.Buffer
	err := render.RenderPNG(&buf, render.Input{
		Profiles: ctrl.VisibleProfiles(),
		Range:    rng,
		Zoom:     s.Zoom,
		Metric:   s.Metric,
		Width:    chart.Width,
		Height:   chart.Height,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
