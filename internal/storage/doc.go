// Package storage persists tracked items.
//
// Drivers:
//   - file: JSON snapshot + append-only journal (afero filesystem)
//   - memory: the file driver on an in-memory filesystem
//   - sqlite: modernc.org/sqlite, schema embedded
//   - postgres: pgx pool, migrations applied with golang-migrate
//
// The scheduler only writes last_notified_at and next_release_date (via
// Store.Update); every other column belongs to the external update path.
package storage
