package models

// RawSample is one row of a recording: a reading per subject for a single
// absolute minute. The absolute minute is the row's position in its dataset.
type RawSample map[string]float64

// Dataset is one loaded recording (e.g. female temperature).
type Dataset struct {
	Name        string      `json:"name"`
	Sex         Sex         `json:"sex"`
	Metric      Metric      `json:"metric"`
	Subjects    []string    `json:"subjects"` // column order
	Rows        []RawSample `json:"-"`
	Fingerprint string      `json:"fingerprint"` // SHA-256 of the source bytes
}

// Days returns the number of whole days covered by the rows.
func (d *Dataset) Days() int {
	return len(d.Rows) / MinutesPerDay
}
