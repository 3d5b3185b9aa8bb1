// Package migrations embeds the session history SQL migration files into
// the binary, so the daemon never depends on SQL files being present on the
// host filesystem.
package migrations

import (
	"embed"

	"github.com/TristanIsrael/mqtt-tunnels/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
