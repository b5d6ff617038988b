package migrations

import "embed"

// FS holds the SQL migrations for each database backend
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
