// Package eventlog keeps a queryable history of projector events in SQLite.
//
// A Recorder registered on the PJLink bridge converts every engine event
// into an Entry and writes it off the engine goroutine. The REST API reads
// history back through Repository.List, and a Pruner deletes entries older
// than the configured retention on a cron schedule.
//
//	repo := eventlog.NewSQLiteRepository(db.DB)
//	rec := eventlog.NewRecorder(repo, 0, logger)
//	rec.Start(ctx)
//	bridge.AddListener(rec)
package eventlog
