// Package config defines the canonical, JSON-serializable configuration model
// for the chart ETL application. It is intentionally small, explicit, and
// dependency-free so that pipelines can be loaded from disk and passed through
// the program without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure used in pipeline
//     files under configs/pipelines/*.json.
//  3. Minimalism: No third-party config libraries; decoding is performed by the
//     standard library, with a light Options helper for typed access.
//
// Example (trimmed):
//
//	{
//	  "job":      "spotify_charts",
//	  "source":   { "kind": "file", "file": { "path": "data/raw/charts.csv" } },
//	  "parser":   { "kind": "csv", "options": { "has_header": true } },
//	  "normalize":{ "dimensions": [...], "fact": {...} },
//	  "storage":  { "kind": "postgres", "db": { "dsn": "...", "schema": "public" } }
//	}
package config

import "encoding/json"

// Pipeline describes the full ETL pipeline in JSON. It is the top-level object
// decoded from a pipeline file, constructed once at process start and treated
// as read-only by every stage.
type Pipeline struct {
	// Job names the run; used for metrics labeling and log context.
	Job string `json:"job"`

	// Source describes where the raw input comes from (local file or HTTP).
	Source Source `json:"source"`

	// Parser configures how raw bytes are turned into rows (CSV today).
	Parser Parser `json:"parser"`

	// Normalize configures the star-schema normalization: which raw columns
	// form dimensions, which is the date, which carry metrics, and which
	// validity filters drop rows up front.
	Normalize Normalize `json:"normalize"`

	// Storage describes the relational target the normalized tables load into.
	Storage Storage `json:"storage"`

	// Validate configures the post-load consistency checks.
	Validate Validate `json:"validate"`

	// Report configures the read-only aggregate reports.
	Report Report `json:"report"`
}

// Source identifies the data source. Additional kinds can be added over time.
type Source struct {
	// Kind selects the source implementation: "file" or "http".
	Kind string `json:"kind"`

	// File carries options for the "file" source kind.
	File SourceFile `json:"file"`

	// HTTP carries options for the "http" source kind.
	HTTP SourceHTTP `json:"http"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	// Path is the local filesystem path to the input file.
	Path string `json:"path"`
}

// SourceHTTP holds configuration for the "http" source kind. The extract
// stage downloads URL into Path; later stages then read Path like a file
// source.
type SourceHTTP struct {
	URL  string `json:"url"`
	Path string `json:"path"`

	// MaxRetries bounds transport-level retries with exponential backoff.
	// Zero picks the client default; a negative value disables retries.
	MaxRetries int `json:"max_retries"`
}

// Parser selects how to parse the raw source into logical rows/columns.
type Parser struct {
	// Kind selects the parser implementation. Current value: "csv".
	Kind string `json:"kind"`

	// Options is a free-form map interpreted by the parser implementation.
	// For CSV, typical keys include:
	//   has_header (bool), comma (string), trim_space (bool),
	//   lazy_quotes (bool), header_map (object)
	Options Options `json:"options"`
}

// Normalize configures the Schema Normalizer.
type Normalize struct {
	// OutputDir is where dimension CSVs, fact partitions, and the manifest
	// are written.
	OutputDir string `json:"output_dir"`

	// Filters is the validity predicate: rows failing any filter are dropped
	// (and counted) before normalization.
	Filters []Filter `json:"filters"`

	// DateColumn names the raw column holding the observation date.
	DateColumn string `json:"date_column"`

	// DateLayout is an optional Go time layout for DateColumn values.
	// Defaults to ISO "2006-01-02".
	DateLayout string `json:"date_layout,omitempty"`

	// Dimensions lists the dimension tables to extract, in dependency order:
	// a dimension naming a Parent must appear after that parent.
	Dimensions []Dimension `json:"dimensions"`

	// Fact configures the fact table built from the surviving rows.
	Fact Fact `json:"fact"`
}

// Filter is one clause of the validity predicate. Op selects the comparison:
//
//	"equals"     — string equality against Value
//	"contains"   — substring match against Value
//	"min"        — numeric value >= Min
//	"positive"   — numeric value > 0
//	"range"      — numeric value within [Min, Max]
//	"date_range" — date within [From, To] per the normalize date layout;
//	               either bound may be empty (unbounded)
type Filter struct {
	Column string  `json:"column"`
	Op     string  `json:"op"`
	Value  string  `json:"value,omitempty"`
	Min    float64 `json:"min,omitempty"`
	Max    float64 `json:"max,omitempty"`
	From   string  `json:"from,omitempty"`
	To     string  `json:"to,omitempty"`
}

// Dimension describes one dimension table extracted from the raw input.
type Dimension struct {
	// Table is the dimension table name (e.g. "artists").
	Table string `json:"table"`

	// IDColumn is the surrogate key column name (e.g. "artist_id").
	IDColumn string `json:"id_column"`

	// KeyColumns are the raw columns forming the natural key, in order.
	KeyColumns []string `json:"key_columns"`

	// AttrColumns are extra raw columns carried onto the dimension row
	// (not part of the natural key).
	AttrColumns []string `json:"attr_columns,omitempty"`

	// Parent optionally names another dimension whose surrogate id becomes
	// part of this dimension's natural key and row (snowflake edge, e.g.
	// tracks → artists). The parent must be declared earlier in Dimensions.
	Parent string `json:"parent,omitempty"`
}

// Fact configures the fact table.
type Fact struct {
	// Table is the fact table name (e.g. "chart_entries").
	Table string `json:"table"`

	// IDColumn is the dense 1-based row id column (e.g. "entry_id").
	IDColumn string `json:"id_column"`

	// RankColumn optionally names a raw integer column carried as-is
	// (e.g. "chart_position").
	RankColumn string `json:"rank_column,omitempty"`

	// MetricColumns are raw numeric columns carried as fact measures.
	MetricColumns []string `json:"metric_columns"`

	// DedupeKeepMax optionally names the metric used to break ties when
	// duplicate (dimension ids..., date, rank) rows occur: the row with the
	// highest value wins. Empty disables deduplication.
	DedupeKeepMax string `json:"dedupe_keep_max,omitempty"`
}

// Storage selects the sink used to persist normalized tables.
type Storage struct {
	// Kind selects the storage implementation: "postgres" or "sqlite".
	Kind string `json:"kind"`

	// DB configures the selected backend.
	DB DBConfig `json:"db"`
}

// DBConfig configures the DB sink.
type DBConfig struct {
	// DSN is the connection string (pgxpool URL for postgres, file path or
	// URI for sqlite).
	DSN string `json:"dsn"`

	// Schema optionally names the target schema (postgres only).
	Schema string `json:"schema,omitempty"`

	// BatchSize bounds fact-table transfer memory; rows are flushed to the
	// backend in batches of this size. Defaults to 100000 when unset.
	BatchSize int `json:"batch_size,omitempty"`

	// AutoCreateTable makes the loader apply CREATE TABLE DDL before loading.
	AutoCreateTable bool `json:"auto_create_table"`

	// PartitionByYear makes the fact table range-partitioned on the date
	// column with one partition per year (postgres only; ignored elsewhere).
	PartitionByYear bool `json:"partition_by_year,omitempty"`
}

// Validate configures the Validator stage.
type Validate struct {
	// SampleSize is the number of random fact rows compared between the
	// normalized files and the loaded table. Defaults to 100 when unset.
	SampleSize int `json:"sample_size,omitempty"`

	// RequiredColumns maps table name -> columns that must contain no NULLs.
	RequiredColumns map[string][]string `json:"required_columns,omitempty"`
}

// Report configures the Reporter stage parameters.
type Report struct {
	// OutputDir is where report CSVs are written.
	OutputDir string `json:"output_dir"`

	// Year scopes the top-tracks report.
	Year int `json:"year"`

	// ChartDate (ISO "2006-01-02") and RegionID scope the snapshot report.
	ChartDate string `json:"chart_date"`
	RegionID  int    `json:"region_id"`

	// TopN bounds the top-tracks and top-artists result sets. Defaults to 10.
	TopN int `json:"top_n,omitempty"`
}

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It purposefully
// performs only minimal type coercion and returns provided defaults when a key
// is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. Useful for single-character parser settings such as a
// CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty
// map when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null "options"
// object in JSON decodes to a non-nil, empty Options map. This simplifies call
// sites by removing the need to nil-check Options values.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
