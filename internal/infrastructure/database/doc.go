// Package database provides SQLite connectivity for VigiLant Core.
//
// It manages:
//   - The connection (WAL mode, busy timeout, foreign keys, single writer)
//   - Schema migrations embedded in the binary
//   - Health checks used by the API
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or have defaults,
// and every .up.sql has a matching .down.sql.
package database
