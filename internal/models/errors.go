package models

import "fmt"

// MalformedDatasetError reports a recording that cannot be averaged: a row
// count that is not a whole number of days, rows with differing subject sets,
// or unparseable cells. It is never retried.
type MalformedDatasetError struct {
	Dataset string
	Reason  string
}

func (e *MalformedDatasetError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("malformed dataset: %s", e.Reason)
	}
	return fmt.Sprintf("malformed dataset %s: %s", e.Dataset, e.Reason)
}

// EmptySelectionWarning is returned next to a usable result when the current
// selection held no data and a fallback was used instead.
type EmptySelectionWarning struct {
	Reason string
}

func (w *EmptySelectionWarning) Error() string {
	return "empty selection: " + w.Reason
}
