// Package migrations embeds the goose SQL migrations.
package migrations

import "embed"

// Files holds every migration in lexical order.
//
//go:embed *.sql
var Files embed.FS
