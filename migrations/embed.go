package migrations

import "embed"

// Files exposes embedded SQL migration files ordered lexicographically.
// The sqlite/ subtree carries the local-store rendition of the schema.
//
//go:embed *.sql sqlite/*.sql
var Files embed.FS
