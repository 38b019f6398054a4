// Package database provides SQLite connectivity for the PHD2 MQTT bridge.
//
// The bridge uses SQLite only for the optional session history log
// (see internal/history). The database is opened in WAL mode with a
// single-writer connection pool, which matches SQLite's concurrency model.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.History.Path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package database
