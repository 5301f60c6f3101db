// Package migrations embeds the SQL migration files into the binary so the
// bridge can migrate its store without the files present on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
