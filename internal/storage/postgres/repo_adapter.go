// This adapter wires the Postgres backend into the storage-agnostic factory by
// registering a constructor at init time. Callers obtain a Repository via
// storage.New(...) without importing this package directly.
//
// The adapter also registers a DDL bootstrapper so that callers can apply
// backend-specific DDL based only on storage.Kind, without branching on the
// backend themselves.
package postgres

import (
	"context"
	"fmt"

	"chartetl/internal/config"
	"chartetl/internal/schema"
	"chartetl/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo implements storage.Repository by delegating to the concrete
// *postgres.Repository while providing a Close method that calls the close
// function returned by NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

// Ensure wrappedRepo satisfies storage.Repository at compile time.
var _ storage.Repository = (*wrappedRepo)(nil)

// Close implements storage.Repository.Close.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func init() {
	// Repository factory registration.
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:    cfg.DSN,
			Schema: cfg.Schema,
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	// DDL bootstrap registration: derive the table set from the pipeline and
	// apply it in load order so foreign keys always point at existing tables.
	storage.RegisterDDL("postgres",
		func(ctx context.Context, repo storage.Repository, p config.Pipeline, years []int) error {
			tables, err := schema.FromPipeline(p)
			if err != nil {
				return fmt.Errorf("infer table definitions: %w", err)
			}
			pgSchema := p.Storage.DB.Schema
			if pgSchema == "" {
				pgSchema = "public"
			}
			for _, t := range tables {
				stmt, err := BuildCreateTableSQL(pgSchema, t)
				if err != nil {
					return err
				}
				if err := repo.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("create table %s: %w", t.Name, err)
				}
				if t.PartitionColumn == "" {
					continue
				}
				for _, y := range years {
					part, err := BuildPartitionSQL(pgSchema, t, y)
					if err != nil {
						return err
					}
					if err := repo.Exec(ctx, part); err != nil {
						return fmt.Errorf("create partition %s_y%d: %w", t.Name, y, err)
					}
				}
			}
			return nil
		})
}
