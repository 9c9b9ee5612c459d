// Package pipeline turns configured recordings into profiles: fetch every
// dataset, reuse cached profiles where the recording is unchanged, aggregate
// the rest and store the result.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rewired-gh/circadia/internal/aggregator"
	"github.com/rewired-gh/circadia/internal/config"
	"github.com/rewired-gh/circadia/internal/logger"
	"github.com/rewired-gh/circadia/internal/models"
	"github.com/rewired-gh/circadia/internal/source"
)

// Loader fetches recordings
type Loader interface {
	LoadAll(ctx context.Context, specs []source.Spec) ([]*models.Dataset, error)
}

// Cache stores profiles by recording fingerprint. A nil Cache disables caching.
type Cache interface {
	LoadProfiles(fingerprint string) ([]models.Profile, bool, error)
	SaveProfiles(fingerprint string, profiles []models.Profile) error
}

// LoadError is a per-dataset failure that did not stop the other datasets
type LoadError struct {
	Dataset string
	Err     error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("dataset %s: %v", e.Dataset, e.Err)
}

func (e LoadError) Unwrap() error {
	return e.Err
}

// Specs maps the data section of the config to the four recordings, in the
// order male temperature, male activity, female temperature, female activity.
func Specs(data config.DataConfig) []source.Spec {
	return []source.Spec{
		{Name: "male_temperature", Location: data.MaleTemperature, Sex: models.Male, Metric: models.Temperature},
		{Name: "male_activity", Location: data.MaleActivity, Sex: models.Male, Metric: models.Activity},
		{Name: "female_temperature", Location: data.FemaleTemperature, Sex: models.Female, Metric: models.Temperature},
		{Name: "female_activity", Location: data.FemaleActivity, Sex: models.Female, Metric: models.Activity},
	}
}

// Result is the outcome of Build
type Result struct {
	Profiles     []models.Profile
	Fingerprints []string // cache keys of every dataset that produced profiles
	Errors       []LoadError
	CacheHits    int
	Days         int // longest recording that produced profiles
}

// Build fetches specs and returns their profiles in spec order. A fetch
// failure aborts the build; a malformed dataset is reported in
// Result.Errors and skipped. Cache failures are logged and ignored.
func Build(ctx context.Context, loader Loader, cache Cache, agg *aggregator.Aggregator, specs []source.Spec) (*Result, error) {
	datasets, err := loader.LoadAll(ctx, specs)
	if err != nil {
		return nil, fmt.Errorf("failed to load datasets: %w", err)
	}

	res := &Result{}
	for _, ds := range datasets {
		key := CacheKey(ds, agg.Options())
		profiles, hit := cached(cache, key, ds.Name)
		if hit {
			res.CacheHits++
			logger.Debug("Cache hit for %s (%s)", ds.Name, short(key))
		} else {
			profiles, err = agg.AggregateDataset(ds)
			if err != nil {
				res.Errors = append(res.Errors, LoadError{Dataset: ds.Name, Err: err})
				continue
			}
		}
		if err := validate(ds.Name, profiles); err != nil {
			res.Errors = append(res.Errors, LoadError{Dataset: ds.Name, Err: err})
			continue
		}
		if !hit && cache != nil && key != "" {
			if err := cache.SaveProfiles(key, profiles); err != nil {
				logger.Warn("Failed to cache profiles for %s: %v", ds.Name, err)
			}
		}

		logger.Info("%s: %d profiles from %d subjects over %d days", ds.Name, len(profiles), len(ds.Subjects), ds.Days())
		res.Profiles = append(res.Profiles, profiles...)
		res.Fingerprints = append(res.Fingerprints, key)
		if ds.Days() > res.Days {
			res.Days = ds.Days()
		}
	}
	return res, nil
}

// CacheKey identifies the profiles of one recording under one set of
// aggregation settings. Empty when the recording has no fingerprint.
func CacheKey(ds *models.Dataset, opts aggregator.Options) string {
	if ds.Fingerprint == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|days=%d|cycle=%d/%d",
		ds.Fingerprint, ds.Sex, ds.Metric, opts.ExpectedDays, opts.CycleLength, opts.CycleOffset)))
	return hex.EncodeToString(sum[:])
}

func validate(name string, profiles []models.Profile) error {
	for i := range profiles {
		if err := profiles[i].Validate(); err != nil {
			return &models.MalformedDatasetError{Dataset: name, Reason: fmt.Sprintf("profile %s: %v", profiles[i].Key(), err)}
		}
	}
	return nil
}

func cached(cache Cache, key, name string) ([]models.Profile, bool) {
	if cache == nil || key == "" {
		return nil, false
	}
	profiles, found, err := cache.LoadProfiles(key)
	if err != nil {
		logger.Warn("Failed to read cached profiles for %s: %v", name, err)
		return nil, false
	}
	return profiles, found
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
