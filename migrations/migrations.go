// Package migrations embeds the goose SQL migrations applied at startup.
package migrations

import "embed"

// FS holds every versioned migration file.
//
//go:embed *.sql
var FS embed.FS
