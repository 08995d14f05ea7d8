// Package database provides the SQLite store behind the projector event
// history.
//
// Open applies the busy timeout and optional WAL journal from config.yaml
// and keeps a single connection, so writes are serialised. Pass
// MemoryPath for a throwaway in-memory database.
//
// Schema changes are plain SQL files named
// YYYYMMDD_HHMMSS_description.up.sql (plus an optional .down.sql) read
// from any fs.FS. The daemon embeds them in package migrations:
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
// Each migration runs in its own transaction and is recorded in
// schema_migrations. Queries elsewhere use ? placeholders only.
package database
