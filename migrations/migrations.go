// Package migrations embeds the SQL schema so binaries and tests apply the
// same files without depending on the working directory.
package migrations

import "embed"

//go:embed schema/*.sql
var FS embed.FS

// Dir is the directory inside FS holding the migration files.
const Dir = "schema"
