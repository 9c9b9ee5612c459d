// Package source fetches recordings from local CSV files or http(s) URLs.
//
// A recording is a CSV table whose header row lists subject IDs and whose
// following rows each hold one numeric reading per subject for one minute.
// Remote fetches retry on network errors and 5xx responses.
package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/rewired-gh/circadia/internal/logger"
	"github.com/rewired-gh/circadia/internal/models"
)

// Spec names one recording and where to find it
type Spec struct {
	Name     string
	Location string // file path or http(s) URL
	Sex      models.Sex
	Metric   models.Metric
}

// ClientConfig holds retry and concurrency settings
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
	MaxConcurrent  int
}

// Client loads recordings
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
	maxConcurrent  int
}

// NewClient creates a new source client
func NewClient(timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase < 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		maxConcurrent:  cfg.MaxConcurrent,
	}
}

// Fetch reads and parses one recording.
func (c *Client) Fetch(ctx context.Context, spec Spec) (*models.Dataset, error) {
	raw, err := c.read(ctx, spec.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", spec.Name, err)
	}

	ds, err := Parse(spec.Name, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	ds.Fingerprint = hex.EncodeToString(sum[:])
	ds.Sex = spec.Sex
	ds.Metric = spec.Metric

	logger.Debug("Loaded %s: %d subjects, %d rows (%d days)", spec.Name, len(ds.Subjects), len(ds.Rows), ds.Days())
	return ds, nil
}

// LoadAll fetches every spec concurrently and returns the datasets in spec
// order. The first failure cancels the remaining fetches.
func (c *Client) LoadAll(ctx context.Context, specs []Spec) ([]*models.Dataset, error) {
	out := make([]*models.Dataset, len(specs))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(c.maxConcurrent)

	for i, spec := range specs {
		p.Go(func(ctx context.Context) error {
			ds, err := c.Fetch(ctx, spec)
			if err != nil {
				return err
			}
			out[i] = ds
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func (c *Client) read(ctx context.Context, location string) ([]byte, error) {
	if !isRemote(location) {
		return os.ReadFile(location)
	}

	resp, err := c.doRequest(ctx, location)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/csv")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Debug("Fetch %s failed (attempt %d/%d): %v", url, i+1, c.maxRetries, err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			logger.Debug("Fetch %s failed (attempt %d/%d): %v", url, i+1, c.maxRetries, lastErr)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Parse reads a recording CSV. Blank header cells, non-numeric readings and
// NaN or infinite readings are rejected as malformed.
func Parse(name string, r io.Reader) (*models.Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &models.MalformedDatasetError{Dataset: name, Reason: "empty file"}
		}
		return nil, &models.MalformedDatasetError{Dataset: name, Reason: err.Error()}
	}

	subjects := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		id := strings.TrimSpace(h)
		if id == "" {
			return nil, &models.MalformedDatasetError{Dataset: name, Reason: fmt.Sprintf("blank subject ID in column %d", i+1)}
		}
		if seen[id] {
			return nil, &models.MalformedDatasetError{Dataset: name, Reason: fmt.Sprintf("duplicate subject ID %s", id)}
		}
		seen[id] = true
		subjects[i] = id
	}

	ds := &models.Dataset{Name: name, Subjects: subjects}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &models.MalformedDatasetError{Dataset: name, Reason: err.Error()}
		}

		row := make(models.RawSample, len(subjects))
		for i, cell := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, &models.MalformedDatasetError{
					Dataset: name,
					Reason:  fmt.Sprintf("line %d, subject %s: %q is not a number", line, subjects[i], cell),
				}
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &models.MalformedDatasetError{
					Dataset: name,
					Reason:  fmt.Sprintf("line %d, subject %s: %q is not a finite number", line, subjects[i], cell),
				}
			}
			row[subjects[i]] = v
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}
