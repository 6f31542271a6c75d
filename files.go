package auth

import (
	"embed"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded schema for the users and
// refresh_sessions tables, ready to feed to the host's migration runner
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
