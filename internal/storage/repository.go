// Package storage contains storage-agnostic contracts and utilities for the
// load, validate and report stages. Concrete backends (Postgres, SQLite)
// register themselves with the factory at init time; callers obtain a
// Repository via New and stay backend-agnostic from then on.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config carries everything a backend needs to open a connection. Kind selects
// the backend ("postgres", "sqlite"); the remaining fields are interpreted by
// the backend itself.
type Config struct {
	Kind   string
	DSN    string
	Schema string // optional schema qualifier; Postgres only
}

// Repository is the contract every storage backend implements.
//
// CopyFrom bulk-inserts rows (aligned to 'columns' order) into 'table' using
// the backend's most efficient primitive and returns the number of rows
// reported as inserted. A failed call must not leave a partial batch behind.
//
// Query runs a read-only statement written with '?' placeholders and
// materializes the full result set; it is intended for the small result sets
// of the validate and report stages, not for bulk reads.
//
// Qualify turns a bare table name into the quoted form generated SQL should
// use (schema-qualified on Postgres).
type Repository interface {
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	Query(ctx context.Context, sql string, args ...any) ([][]any, error)
	Exec(ctx context.Context, sql string, args ...any) error
	Qualify(table string) string
	Close()
}

// Factory constructs a Repository from a Config. Backends register one per
// storage kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) a Factory for the given storage kind. It is
// typically called from backend packages' init() functions.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// New opens a Repository for cfg.Kind. Returns an error listing the available
// kinds when the requested one has not been registered.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unsupported kind %q (available: %v)", cfg.Kind, ListKinds())
	}
	return fn(ctx, cfg)
}

// ListKinds returns the registered storage kinds in sorted order.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
