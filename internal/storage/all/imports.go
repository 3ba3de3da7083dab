// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories and DDL bootstrappers with the
// storage package.
//
// Importing this package makes the following storage kinds available:
//
//   - "postgres" (chartetl/internal/storage/postgres)
//   - "sqlite"   (chartetl/internal/storage/sqlite)
package all

import (
	_ "chartetl/internal/storage/postgres"
	_ "chartetl/internal/storage/sqlite"
)
