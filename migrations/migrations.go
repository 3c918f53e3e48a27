// Package migrations embeds the goose SQL migrations for the notification store
// and the task queue. Pass FS to pg.Migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
