// Package sqlite stores the email history ledger and polling run log in a
// single SQLite database, using the pure Go modernc.org/sqlite driver.
//
//   - Ledger: emails and email_vectors, written together in one transaction
//   - RunStore: one row per polling cycle
//
// # Schema
//
// The schema is managed through numbered migrations in migrations/. Each
// applied version is recorded in schema_migrations.
//
// # Data Location
//
// The database lives at <data_dir>/triage.db.
package sqlite
