package migrations

import (
	"io/fs"

	credentials "github.com/goliatone/go-credentials"
)

// CoreLabel labels the users, auth_tokens and auth_activity migrations.
const CoreLabel = "credentials"

func init() {
	coreFS, err := fs.Sub(credentials.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return
	}
	Register(CoreLabel, coreFS)
}
