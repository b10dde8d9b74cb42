// Package migrations embeds the goose SQL migration set applied by
// cmd/migrate and, when database.auto_migrate is enabled, by cmd/server
// on startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
