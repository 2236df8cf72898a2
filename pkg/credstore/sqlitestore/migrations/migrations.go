// Package migrations embeds the schema migration files for the sqlite
// credential store so they ship inside the binary.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
