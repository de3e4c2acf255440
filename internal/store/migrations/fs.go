// Package migrations embeds the SQL schema migrations for tello.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
