// Package database opens the SQLite database used for device session
// history and applies schema migrations.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// (with an optional .down.sql) read from any fs.FS, normally the embedded
// migrations package:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. The database file is created
// with mode 0600.
package database
