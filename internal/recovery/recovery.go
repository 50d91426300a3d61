// Package recovery classifies pipeline failures and decides whether a run
// can continue, degrade, or must stop.
package recovery

import (
	"context"
	"errors"
	"net"

	"cloudforge/internal/graph"
	"cloudforge/internal/schema"
	"cloudforge/internal/validate"
)

// Category buckets a failure by how the pipeline should react to it.
type Category string

const (
	// CategoryTransientNetwork covers timeouts and connection failures
	// against external services. Retryable.
	CategoryTransientNetwork Category = "transient-network"

	// CategoryMissingSchema means the schema service had no schema for a
	// resource type. Not retryable, but a bundled fallback exists.
	CategoryMissingSchema Category = "missing-schema"

	// CategoryInvalidInput covers structural authoring errors such as a
	// dependency on a resource that does not exist. The run stops.
	CategoryInvalidInput Category = "invalid-input"

	// CategoryAborted marks context cancellation.
	CategoryAborted Category = "aborted"

	// CategoryInternal is everything else.
	CategoryInternal Category = "internal"
)

// Record is one classified failure observed during a run.
type Record struct {
	Category          Category `json:"category"`
	Stage             string   `json:"stage"`
	Message           string   `json:"message"`
	Retryable         bool     `json:"retryable"`
	FallbackAvailable bool     `json:"fallbackAvailable"`

	// Recovered is true when the run continued past this failure, e.g. by
	// substituting a bundled schema.
	Recovered bool `json:"recovered"`

	cause error
}

func (r Record) Error() string { return r.Message }

// Unwrap exposes the original error for errors.Is chains.
func (r Record) Unwrap() error { return r.cause }

// Classify builds a Record for an error raised during the named stage.
func Classify(stage string, err error) Record {
	rec := Record{
		Stage:   stage,
		Message: err.Error(),
		cause:   err,
	}

	var graphErr *graph.Error
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		rec.Category = CategoryAborted
	case errors.Is(err, schema.ErrNotFound):
		rec.Category = CategoryMissingSchema
		rec.FallbackAvailable = true
	case errors.As(err, &graphErr):
		rec.Category = CategoryInvalidInput
	case errors.As(err, &netErr):
		rec.Category = CategoryTransientNetwork
		rec.Retryable = true
	default:
		rec.Category = CategoryInternal
	}
	return rec
}

// Status is the overall outcome of one pipeline run.
type Status string

const (
	StatusSucceeded             Status = "succeeded"
	StatusSucceededWithWarnings Status = "succeeded-with-warnings"
	StatusFailed                Status = "failed"
)

// DeriveStatus folds validation findings and failure records into the run
// status. Any unrecovered failure or validation error fails the run;
// warnings and recovered failures degrade it; otherwise it succeeded.
func DeriveStatus(result validate.Result, records []Record) Status {
	if !result.IsValid() {
		return StatusFailed
	}
	for _, rec := range records {
		if !rec.Recovered {
			return StatusFailed
		}
	}
	if result.HasWarnings() || len(records) > 0 {
		return StatusSucceededWithWarnings
	}
	return StatusSucceeded
}
