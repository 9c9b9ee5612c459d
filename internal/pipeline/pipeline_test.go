package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rewired-gh/circadia/internal/aggregator"
	"github.com/rewired-gh/circadia/internal/config"
	"github.com/rewired-gh/circadia/internal/models"
	"github.com/rewired-gh/circadia/internal/source"
	"github.com/rewired-gh/circadia/internal/storage"
)

type fakeLoader struct {
	datasets []*models.Dataset
	err      error
	calls    int
}

func (f *fakeLoader) LoadAll(ctx context.Context, specs []source.Spec) ([]*models.Dataset, error) {
	f.calls++
	return f.datasets, f.err
}

func constantDataset(name string, sex models.Sex, metric models.Metric, days int, v float64, subjects ...string) *models.Dataset {
	rows := make([]models.RawSample, days*models.MinutesPerDay)
	for i := range rows {
		row := make(models.RawSample, len(subjects))
		for _, id := range subjects {
			row[id] = v
		}
		rows[i] = row
	}
	return &models.Dataset{Name: name, Sex: sex, Metric: metric, Subjects: subjects, Rows: rows, Fingerprint: name + "-fp"}
}

// cycleDataset holds one female subject reading 39 on days 2, 6, 10 and 14
// and 36 on every other day.
func cycleDataset(fingerprint string) *models.Dataset {
	ds := constantDataset("female_temperature", models.Female, models.Temperature, 14, 36, "f1")
	for i, row := range ds.Rows {
		if day, _ := models.MinuteOf(i); (day-2)%4 == 0 {
			row["f1"] = 39
		}
	}
	ds.Fingerprint = fingerprint
	return ds
}

func findProfile(profiles []models.Profile, id string, phase models.Phase) *models.Profile {
	for i := range profiles {
		if profiles[i].SubjectID == id && profiles[i].Phase == phase {
			return &profiles[i]
		}
	}
	return nil
}

func TestSpecs(t *testing.T) {
	specs := Specs(config.DataConfig{
		MaleTemperature:   "a.csv",
		MaleActivity:      "b.csv",
		FemaleTemperature: "c.csv",
		FemaleActivity:    "d.csv",
	})
	if len(specs) != 4 {
		t.Fatalf("Expected 4 specs, got %d", len(specs))
	}
	if specs[2].Sex != models.Female || specs[2].Metric != models.Temperature || specs[2].Location != "c.csv" {
		t.Errorf("Unexpected female temperature spec: %+v", specs[2])
	}
}

func TestBuild_AggregatesAndCaches(t *testing.T) {
	cache, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer cache.Close()

	loader := &fakeLoader{datasets: []*models.Dataset{
		constantDataset("male_temperature", models.Male, models.Temperature, 14, 37, "m1", "m2"),
		constantDataset("female_temperature", models.Female, models.Temperature, 14, 36, "f1"),
	}}
	agg := aggregator.New(aggregator.DefaultOptions())

	res, err := Build(context.Background(), loader, cache, agg, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(res.Profiles) != 4 {
		t.Errorf("Expected 4 profiles, got %d", len(res.Profiles))
	}
	if res.Days != 14 {
		t.Errorf("Expected 14 days, got %d", res.Days)
	}
	if res.CacheHits != 0 {
		t.Errorf("Expected no cache hits on first build, got %d", res.CacheHits)
	}

	again, err := Build(context.Background(), loader, cache, agg, nil)
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if again.CacheHits != 2 {
		t.Errorf("Expected 2 cache hits, got %d", again.CacheHits)
	}
	if len(again.Profiles) != 4 {
		t.Errorf("Expected 4 cached profiles, got %d", len(again.Profiles))
	}
}

func TestBuild_ReportsMalformedDataset(t *testing.T) {
	loader := &fakeLoader{datasets: []*models.Dataset{
		constantDataset("male_activity", models.Male, models.Activity, 14, 10, "m1"),
		constantDataset("female_activity", models.Female, models.Activity, 3, 10, "f1"),
	}}
	agg := aggregator.New(aggregator.DefaultOptions())

	res, err := Build(context.Background(), loader, nil, agg, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(res.Profiles) != 1 {
		t.Errorf("Expected the male profile only, got %d", len(res.Profiles))
	}
	if len(res.Errors) != 1 || res.Errors[0].Dataset != "female_activity" {
		t.Fatalf("Expected one error for female_activity, got %v", res.Errors)
	}
	var malformed *models.MalformedDatasetError
	if !errors.As(res.Errors[0], &malformed) {
		t.Errorf("Expected MalformedDatasetError, got %v", res.Errors[0].Err)
	}
}

func TestBuild_FetchFailure(t *testing.T) {
	loader := &fakeLoader{err: errors.New("connection refused")}
	if _, err := Build(context.Background(), loader, nil, aggregator.New(aggregator.DefaultOptions()), nil); err == nil {
		t.Error("Expected fetch failure to abort the build")
	}
}

func TestBuild_SettingsChangeMissesCache(t *testing.T) {
	cache, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer cache.Close()

	loader := &fakeLoader{datasets: []*models.Dataset{cycleDataset("same-bytes")}}

	first, err := Build(context.Background(), loader, cache, aggregator.New(aggregator.DefaultOptions()), nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if p := findProfile(first.Profiles, "f1", models.PhaseEstrus); p == nil || p.Values[0] != 39 {
		t.Fatalf("Expected estrus profile at 39, got %+v", p)
	}

	shifted := aggregator.DefaultOptions()
	shifted.CycleOffset = 1
	second, err := Build(context.Background(), loader, cache, aggregator.New(shifted), nil)
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if second.CacheHits != 0 {
		t.Errorf("Expected a cache miss after changing the cycle offset, got %d hits", second.CacheHits)
	}
	// Days 1, 5, 9 and 13 all read 36
	if p := findProfile(second.Profiles, "f1", models.PhaseEstrus); p == nil || p.Values[0] != 36 {
		t.Errorf("Expected re-aggregated estrus profile at 36, got %+v", p)
	}
}

func TestBuild_ExpectedDaysChangeMissesCache(t *testing.T) {
	cache, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer cache.Close()

	loader := &fakeLoader{datasets: []*models.Dataset{
		constantDataset("male_temperature", models.Male, models.Temperature, 14, 37, "m1"),
	}}
	if _, err := Build(context.Background(), loader, cache, aggregator.New(aggregator.DefaultOptions()), nil); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	strict := aggregator.DefaultOptions()
	strict.ExpectedDays = 7
	res, err := Build(context.Background(), loader, cache, aggregator.New(strict), nil)
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if len(res.Profiles) != 0 || len(res.Errors) != 1 {
		t.Errorf("Expected the 14-day recording to be rejected for 7 expected days, got %d profiles, %v", len(res.Profiles), res.Errors)
	}
}

func TestBuild_SameBytesKeepSexAndMetric(t *testing.T) {
	cache, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer cache.Close()

	male := constantDataset("male_temperature", models.Male, models.Temperature, 14, 37, "a1")
	female := constantDataset("female_activity", models.Female, models.Activity, 14, 37, "a1")
	male.Fingerprint, female.Fingerprint = "shared", "shared"
	loader := &fakeLoader{datasets: []*models.Dataset{male, female}}
	agg := aggregator.New(aggregator.DefaultOptions())

	for round := 0; round < 2; round++ {
		res, err := Build(context.Background(), loader, cache, agg, nil)
		if err != nil {
			t.Fatalf("round %d: Build failed: %v", round, err)
		}
		if len(res.Profiles) != 3 {
			t.Fatalf("round %d: expected 3 profiles, got %d", round, len(res.Profiles))
		}
		if p := findProfile(res.Profiles, "a1", models.PhaseMale); p == nil || p.Metric != models.Temperature {
			t.Errorf("round %d: expected male temperature profile, got %+v", round, p)
		}
		if p := findProfile(res.Profiles, "a1", models.PhaseNonEstrus); p == nil || p.Metric != models.Activity || p.Sex != models.Female {
			t.Errorf("round %d: expected female activity profile, got %+v", round, p)
		}
		if res.Fingerprints[0] == res.Fingerprints[1] {
			t.Errorf("round %d: expected distinct cache keys", round)
		}
	}
}

func TestBuild_RejectsNonFiniteProfiles(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1)} {
		ds := constantDataset("male_temperature", models.Male, models.Temperature, 14, 37, "m1")
		ds.Rows[5]["m1"] = bad
		loader := &fakeLoader{datasets: []*models.Dataset{
			ds,
			constantDataset("male_activity", models.Male, models.Activity, 14, 3, "m1"),
		}}

		res, err := Build(context.Background(), loader, nil, aggregator.New(aggregator.DefaultOptions()), nil)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if len(res.Profiles) != 1 || res.Profiles[0].Metric != models.Activity {
			t.Errorf("%v: expected only the activity profile, got %d profiles", bad, len(res.Profiles))
		}
		if len(res.Errors) != 1 || res.Errors[0].Dataset != "male_temperature" {
			t.Fatalf("%v: expected one error for male_temperature, got %v", bad, res.Errors)
		}
		var malformed *models.MalformedDatasetError
		if !errors.As(res.Errors[0], &malformed) {
			t.Errorf("%v: expected MalformedDatasetError, got %v", bad, res.Errors[0].Err)
		}
	}
}
