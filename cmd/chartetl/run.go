// Package main wires the chart ETL pipeline end-to-end: extract, profile,
// normalize, load, validate, report. This file keeps the stage dispatch thin;
// each stage lives in its own internal package and the CLI never imports
// database drivers or backend-specific code directly.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"chartetl/internal/config"
	"chartetl/internal/datasource"
	"chartetl/internal/datasource/httpds"
	"chartetl/internal/load"
	"chartetl/internal/metrics"
	"chartetl/internal/normalize"
	"chartetl/internal/profile"
	"chartetl/internal/report"
	"chartetl/internal/storage"
	"chartetl/internal/validate"
)

// stageOrder is the pipeline in execution order. The profile stage is an
// exploratory tool and runs only when asked for by name.
var stageOrder = []string{"extract", "normalize", "load", "validate", "report"}

// Function variables used to introduce test seams. In production these point
// to real implementations; tests can override them.
var (
	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return storage.New(ctx, cfg)
	}

	downloadFn = func(ctx context.Context, c *httpds.Client, url, dest string) (int64, error) {
		return c.Download(ctx, url, dest)
	}
)

// runStage executes one named stage, records its outcome, and wraps any
// failure with the stage name.
func runStage(ctx context.Context, p config.Pipeline, name string, out io.Writer) error {
	start := time.Now()
	err := dispatch(ctx, p, name, out)
	metrics.RecordStage(p.Job, name, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	log.Printf("stage=%s status=ok duration=%s", name, time.Since(start).Truncate(time.Millisecond))
	return nil
}

func dispatch(ctx context.Context, p config.Pipeline, name string, out io.Writer) error {
	switch name {
	case "extract":
		return runExtract(ctx, p)
	case "profile":
		return runProfile(ctx, p)
	case "normalize":
		return runNormalize(ctx, p)
	case "load":
		return runLoad(ctx, p)
	case "validate":
		return runValidate(ctx, p)
	case "report":
		return runReport(ctx, p, out)
	case "all":
		for _, s := range stageOrder {
			if err := runStage(ctx, p, s, out); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown stage %q (available: extract, profile, normalize, load, validate, report, all)", name)
	}
}

// runExtract downloads the raw input for http sources. File sources need no
// extraction; the stage logs and returns.
func runExtract(ctx context.Context, p config.Pipeline) error {
	if p.Source.Kind != "http" {
		log.Printf("extract: source.kind=%q needs no download, skipping", p.Source.Kind)
		return nil
	}

	client := httpds.NewClient(httpds.Config{MaxRetries: p.Source.HTTP.MaxRetries})
	n, err := downloadFn(ctx, client, p.Source.HTTP.URL, p.Source.HTTP.Path)
	if err != nil {
		return err
	}
	log.Printf("extract: url=%s dest=%s bytes=%d", p.Source.HTTP.URL, p.Source.HTTP.Path, n)
	return nil
}

func runProfile(ctx context.Context, p config.Pipeline) error {
	rc, err := openSource(ctx, p)
	if err != nil {
		return err
	}
	prof, err := profile.Run(ctx, rc, p, 0)
	if err != nil {
		return err
	}
	if err := profile.WriteFile(p.Normalize.OutputDir, prof); err != nil {
		return err
	}
	log.Printf("profile: columns=%d rows_scanned=%d report=%s",
		len(prof.Columns), prof.RowsScanned, profile.ReportName)
	return nil
}

func runNormalize(ctx context.Context, p config.Pipeline) error {
	rc, err := openSource(ctx, p)
	if err != nil {
		return err
	}
	res, err := normalize.Run(ctx, rc, p)
	if err != nil {
		return err
	}
	recordNormalizeStats(p.Job, res.Stats)

	m, err := normalize.Write(p.Normalize.OutputDir, sourceName(p), p, res)
	if err != nil {
		return err
	}
	log.Printf("normalize: tables=%d fact_rows=%d years=%v dir=%s",
		len(m.Tables), res.Stats.FactRows, res.Years, p.Normalize.OutputDir)
	return nil
}

func runLoad(ctx context.Context, p config.Pipeline) error {
	repo, err := openRepository(ctx, p)
	if err != nil {
		return err
	}
	defer repo.Close()

	res, err := load.Run(ctx, p, repo)
	if err != nil {
		return err
	}
	metrics.RecordRows(p.Job, "inserted", res.Total)
	for table, rows := range res.Tables {
		log.Printf("load: table=%s rows=%d", table, rows)
	}
	return nil
}

func runValidate(ctx context.Context, p config.Pipeline) error {
	repo, err := openRepository(ctx, p)
	if err != nil {
		return err
	}
	defer repo.Close()

	rep, err := validate.Run(ctx, p, repo)
	if rep != nil {
		log.Printf("validate: checks=%d failed=%d", len(rep.Checks), len(rep.Failed()))
	}
	return err
}

func runReport(ctx context.Context, p config.Pipeline, out io.Writer) error {
	repo, err := openRepository(ctx, p)
	if err != nil {
		return err
	}
	defer repo.Close()

	return report.Run(ctx, p, repo, out)
}

func openSource(ctx context.Context, p config.Pipeline) (io.ReadCloser, error) {
	src, err := datasource.ForPipeline(p)
	if err != nil {
		return nil, err
	}
	return src.Open(ctx)
}

func openRepository(ctx context.Context, p config.Pipeline) (storage.Repository, error) {
	return newRepositoryFn(ctx, storage.Config{
		Kind:   p.Storage.Kind,
		DSN:    p.Storage.DB.DSN,
		Schema: p.Storage.DB.Schema,
	})
}

func sourceName(p config.Pipeline) string {
	if p.Source.Kind == "http" {
		return p.Source.HTTP.URL
	}
	return p.Source.File.Path
}

func recordNormalizeStats(job string, s normalize.Stats) {
	metrics.RecordRows(job, "raw_rows", s.RawRows)
	metrics.RecordRows(job, "parse_errors", s.ParseErrors)
	metrics.RecordRows(job, "filtered_out", s.FilteredOut)
	metrics.RecordRows(job, "invalid_values", s.InvalidValues)
	metrics.RecordRows(job, "dupes_removed", s.DupesRemoved)
	metrics.RecordRows(job, "fact_rows", s.FactRows)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
