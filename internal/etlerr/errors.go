// Package etlerr defines the typed error taxonomy shared by all pipeline
// stages. Every stage surfaces failures through one of these types so that
// the CLI (and tests) can distinguish "input is missing" from "the loader
// rejected a batch" without string matching.
//
// The types are plain structs with Error()/Unwrap(); call sites still wrap
// with fmt.Errorf("...: %w", err) for extra context, and callers use
// errors.As to recover the typed value.
package etlerr

import (
	"fmt"
	"strings"
)

// SourceUnavailableError reports a missing or unreadable input file. Fatal;
// there is nothing to retry until the operator supplies the input.
type SourceUnavailableError struct {
	Path string
	Err  error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable: %s: %v", e.Path, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// SchemaError reports a required column absent from the raw input. Fatal and
// surfaced immediately; the pipeline configuration and the file disagree.
type SchemaError struct {
	Column string
	Path   string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema error: required column %q not found", e.Column)
	}
	return fmt.Sprintf("schema error: required column %q not found in %s", e.Column, e.Path)
}

// DataIntegrityError reports a post-normalization invariant violation, such
// as a fact row referencing an attribute value that was never assigned a
// surrogate id. This indicates a bug in normalization, not a data problem.
type DataIntegrityError struct {
	Table  string
	Column string
	Value  any
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity violation in %s: column %q value %v has no dimension id",
		e.Table, e.Column, e.Value)
}

// LoadError reports a constraint violation (or transport failure) during a
// bulk-load batch. The offending batch is rejected; batches committed before
// it remain in the database, so the operator needs table + batch to diagnose.
type LoadError struct {
	Table string
	Batch int // 1-based index of the failed batch; 0 when not batch-scoped
	Err   error
}

func (e *LoadError) Error() string {
	if e.Batch > 0 {
		return fmt.Sprintf("load %s: batch %d rejected: %v", e.Table, e.Batch, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ValidationFailure reports that one or more validation checks failed. The
// pipeline run itself is not aborted by it, but the reporter must refuse to
// run against a dataset whose latest validation failed.
type ValidationFailure struct {
	Failed []string // names of the failed checks
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Failed, ", "))
}

// ParameterError reports an invalid report parameter (e.g. a region id that
// does not exist in the region dimension). It fails the single report
// request; no query is executed against the database.
type ParameterError struct {
	Name   string
	Value  any
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Name, e.Value, e.Reason)
}
