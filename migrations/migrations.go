// Package migrations embeds the SQL schema migrations so the binary can apply
// them without shipping the directory.
package migrations

import "embed"

// FS holds every *.up.sql / *.down.sql file in golang-migrate naming.
//
//go:embed *.sql
var FS embed.FS
