// Package migrations embeds the daemon's SQL schema migrations.
//
//	db.Migrate(ctx, migrations.FS)
package migrations

import "embed"

// FS holds every *.sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS
