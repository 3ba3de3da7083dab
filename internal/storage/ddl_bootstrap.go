package storage

import (
	"context"
	"fmt"
	"sync"

	"chartetl/internal/config"
)

// DDLBootstrapper is a backend-specific function that derives the dimension
// and fact table definitions from the pipeline spec and applies the
// appropriate DDL via repo.Exec (CREATE TABLE, partitions, indexes). 'years'
// lists the calendar years present in the fact data; backends that partition
// by year create one partition per entry, others ignore it.
//
// Backends register their implementation for a given storage kind at init
// time.
type DDLBootstrapper func(ctx context.Context, repo Repository, p config.Pipeline, years []int) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) a DDLBootstrapper for the given storage
// kind. It is typically called from backend packages' init() functions.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureSchemaFromPipeline locates the DDLBootstrapper for p.Storage.Kind and
// invokes it. Callers do not need to know which backend they are using; they
// pass the pipeline and the already-open Repository.
func EnsureSchemaFromPipeline(ctx context.Context, p config.Pipeline, years []int, repo Repository) error {
	ddlMu.RLock()
	fn, ok := ddlFns[p.Storage.Kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", p.Storage.Kind)
	}
	return fn(ctx, repo, p, years)
}
