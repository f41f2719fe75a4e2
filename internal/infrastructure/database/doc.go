// Package database provides the SQLite connection used for bridge state.
//
// The bridge stores little: the controller poll cursor and a short history
// of characteristic changes and dispatched commands. Schema changes are
// applied from embedded migration files.
//
// Usage:
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
package database
