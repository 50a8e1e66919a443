// Package database provides SQLite connectivity for Trackside Core.
//
// It owns the connection (WAL mode, busy timeout, single writer) and the
// schema migration runner. Repositories in the automation and layout
// packages build on *DB.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and every .up.sql should ship a .down.sql.
package database
