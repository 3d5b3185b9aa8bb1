// Package database provides the SQLite store backing tunnel session history.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Additive schema migrations embedded in the binary
//   - Connection lifecycle and health checks
//
// Session history is strictly optional: the daemon relays traffic exactly
// the same with history disabled, and a failed write never interrupts a
// running tunnel.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.History.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: new columns must be NULLABLE or carry a
// DEFAULT, and columns are never dropped or renamed. Each migration file
// has both .up.sql and .down.sql variants.
package database
