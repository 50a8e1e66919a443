// Package migrations embeds the Trackside SQL schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/trackside-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

// Source returns the embedded migrations for database.DB.Migrate.
func Source() database.Source {
	return database.Source{FS: migrationsFS, Dir: "."}
}
