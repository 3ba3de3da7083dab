// Package config provides configuration models and helpers for ETL pipelines.
//
// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "normalize.dimensions[1].parent"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateNormalize(p.Normalize)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateReport(p.Report)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
		return issues
	}

	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file.path",
				Message:  "file source requires a non-empty path",
			})
		}
	case "http":
		if strings.TrimSpace(s.HTTP.URL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http.url",
				Message:  "http source requires a non-empty url",
			})
		}
		if strings.TrimSpace(s.HTTP.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http.path",
				Message:  "http source requires a download destination path",
			})
		}
	default:
		// Unknown kinds are warnings for forward compatibility.
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; ensure a matching implementation exists", s.Kind),
		})
	}

	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  "parser.kind must not be empty",
		})
		return issues
	}
	if p.Kind != "csv" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "parser.kind",
			Message:  fmt.Sprintf("unknown parser kind %q", p.Kind),
		})
	}
	return issues
}

func validateNormalize(n Normalize) []Issue {
	var issues []Issue

	if strings.TrimSpace(n.OutputDir) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "normalize.output_dir",
			Message:  "normalize.output_dir must not be empty",
		})
	}
	if strings.TrimSpace(n.DateColumn) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "normalize.date_column",
			Message:  "normalize.date_column must not be empty",
		})
	}
	if len(n.Dimensions) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "normalize.dimensions",
			Message:  "at least one dimension is required",
		})
	}

	// Dimension-level checks. Parents must be declared before children so a
	// single pass can resolve parent ids.
	seen := map[string]int{}
	for i, d := range n.Dimensions {
		path := fmt.Sprintf("normalize.dimensions[%d]", i)
		if strings.TrimSpace(d.Table) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".table", Message: "dimension table must not be empty"})
		}
		if strings.TrimSpace(d.IDColumn) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".id_column", Message: "dimension id_column must not be empty"})
		}
		if len(d.KeyColumns) == 0 {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".key_columns", Message: "dimension requires at least one key column"})
		}
		if d.Parent != "" {
			if _, ok := seen[d.Parent]; !ok {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".parent",
					Message:  fmt.Sprintf("parent dimension %q must be declared before %q", d.Parent, d.Table),
				})
			}
		}
		if prev, dup := seen[d.Table]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".table",
				Message:  fmt.Sprintf("dimension table %q already declared at index %d", d.Table, prev),
			})
		}
		seen[d.Table] = i
	}

	if strings.TrimSpace(n.Fact.Table) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "normalize.fact.table", Message: "fact table must not be empty"})
	}
	if strings.TrimSpace(n.Fact.IDColumn) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "normalize.fact.id_column", Message: "fact id_column must not be empty"})
	}
	if n.Fact.DedupeKeepMax != "" {
		found := false
		for _, m := range n.Fact.MetricColumns {
			if m == n.Fact.DedupeKeepMax {
				found = true
				break
			}
		}
		if !found {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "normalize.fact.dedupe_keep_max",
				Message:  fmt.Sprintf("dedupe_keep_max %q is not one of metric_columns", n.Fact.DedupeKeepMax),
			})
		}
	}

	// Filter op sanity.
	for i, f := range n.Filters {
		path := fmt.Sprintf("normalize.filters[%d]", i)
		if strings.TrimSpace(f.Column) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".column", Message: "filter column must not be empty"})
		}
		switch f.Op {
		case "equals", "contains", "min", "positive", "range", "date_range":
		default:
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".op",
				Message:  fmt.Sprintf("unknown filter op %q", f.Op),
			})
		}
	}

	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}
	known := map[string]struct{}{"postgres": {}, "sqlite": {}}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  "storage.db.dsn must not be empty",
		})
	}
	if s.DB.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	if s.DB.PartitionByYear && s.Kind != "postgres" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.db.partition_by_year",
			Message:  fmt.Sprintf("partitioning is ignored by the %q backend", s.Kind),
		})
	}

	return issues
}

func validateReport(r Report) []Issue {
	var issues []Issue

	if r.TopN < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "report.top_n",
			Message:  "top_n must not be negative",
		})
	}
	return issues
}
