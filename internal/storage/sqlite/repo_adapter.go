// This adapter wires the SQLite backend into the storage factory. Registration
// happens in init; callers obtain a Repository via storage.New(...).
package sqlite

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

// wrappedRepo adapts *sqlite.Repository to the storage.Repository interface,
// adding a Close method that calls the cleanup function returned by
// NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

// Close implements storage.Repository.Close.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// Ensure wrappedRepo satisfies the interface at compile time.
var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	// DDL bootstrap registration. Years are ignored; SQLite stores the fact
	// table unpartitioned.
	storage.RegisterDDL("sqlite",
		func(ctx context.Context, repo storage.Repository, p config.Pipeline, _ []int) error {
			tables, err := schema.FromPipeline(p)
			if err != nil {
				return fmt.Errorf("infer table definitions: %w", err)
			}
			for _, t := range tables {
				stmt, err := BuildCreateTableSQL(t)
				if err != nil {
					return err
				}
				if err := repo.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("create table %s: %w", t.Name, err)
				}
			}
			return nil
		})
}
