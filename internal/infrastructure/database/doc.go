// Package database opens the bridge's local SQLite file and applies
// schema migrations from an fs.FS.
//
// The bridge keeps no telemetry on disk; this database only backs the
// optional command audit log.
//
//	db, err := database.Open(database.ConfigFromAudit(cfg.Audit))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
