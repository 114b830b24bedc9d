// Package postgres embeds the SQL migrations of the postgres store.
package postgres

import "embed"

//go:embed *.sql
var FS embed.FS
