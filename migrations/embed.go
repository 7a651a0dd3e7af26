// Package migrations bundles the SQL schema applied to the Postgres user store.
package migrations

import "embed"

// Files holds the ordered *.sql migrations.
//
//go:embed *.sql
var Files embed.FS
