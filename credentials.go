// Package credentials manages the access/refresh token lifecycle of user
// accounts: password and federated sign-in, sign-up, explicit refresh and
// per-request session resolution with silent access renewal.
package credentials

import (
	"embed"

	"github.com/goliatone/go-credentials/service"
)

// MigrationsFS contains SQL migrations for both PostgreSQL and SQLite.
//
// Root files (data/sql/migrations/*.sql) target PostgreSQL; SQLite overrides
// live in data/sql/migrations/sqlite. go-persistence-bun selects the right set
// from the database dialect:
//
//	migrationsFS, _ := fs.Sub(credentials.GetMigrationsFS(), "data/sql/migrations")
//	client.RegisterDialectMigrations(
//	    migrationsFS,
//	    persistence.WithDialectSourceLabel("."),
//	    persistence.WithValidationTargets("postgres", "sqlite"),
//	)
//
//go:embed data/sql/migrations
var MigrationsFS embed.FS

// GetMigrationsFS exposes the SQL migration files so host applications can
// register them with go-persistence-bun or another runner.
func GetMigrationsFS() embed.FS {
	return MigrationsFS
}

// Re-export the service entry point so consumers can call credentials.New
// without importing the wiring package.
type (
	Service       = service.Service
	Config        = service.Config
	TokenConfig   = service.TokenConfig
	SignUpRequest = service.SignUpRequest
	Commands      = service.Commands
	Queries       = service.Queries
)

// New constructs the credentials runtime from cfg.
func New(cfg Config) (*Service, error) {
	return service.New(cfg)
}
