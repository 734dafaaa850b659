// Package database provides SQLite connectivity for the agent's local
// history store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations read from an fs.FS (the binary embeds them, see
//     package migrations)
//   - Connection pooling and lifecycle management
//
// Usage:
//
//	db, err := database.Open(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: each version has an .up.sql file and,
// optionally, a .down.sql file. All queries use parameterised statements.
package database
