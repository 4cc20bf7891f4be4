package migrations_test

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-credentials/migrations"
)

func TestMigrationsApplyToSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})

	ctx := context.Background()
	sources := migrations.Sources()
	require.NotEmpty(t, sources)
	require.Equal(t, migrations.CoreLabel, sources[0].Label)

	for _, src := range sources {
		require.NoError(t, applySource(ctx, db, src, "sqlite"))
	}
	require.NoError(t, migrations.ValidateSchema(ctx, db, "sqlite3"))
}

func TestValidateSchemaReportsDrift(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})
	ctx := context.Background()

	_, err = db.ExecContext(ctx, "CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT)")
	require.NoError(t, err)

	err = migrations.ValidateSchema(ctx, db, "sqlite")
	var drift *migrations.SchemaValidationError
	require.ErrorAs(t, err, &drift)
	require.ElementsMatch(t, []string{"auth_activity", "auth_tokens"}, drift.MissingTables)
	require.Contains(t, drift.MissingColumns["users"], "password_hash")

	err = migrations.ValidateSchema(ctx, db, "sqlite", migrations.WithSchemaChecks([]migrations.SchemaCheck{
		{Table: "users", Columns: []string{"id", "email"}},
	}))
	require.NoError(t, err)

	require.Error(t, migrations.ValidateSchema(ctx, db, "mysql"))
}

func TestUpFilesPerDialect(t *testing.T) {
	src := migrations.Sources()[0]

	pg, err := migrations.UpFiles(src, "postgres")
	require.NoError(t, err)
	lite, err := migrations.UpFiles(src, "sqlite")
	require.NoError(t, err)
	require.Len(t, lite, len(pg))
	for _, name := range lite {
		require.True(t, strings.HasPrefix(name, "sqlite/"), name)
	}
}

func applySource(ctx context.Context, db *sql.DB, src migrations.Source, dialect string) error {
	entries, err := migrations.UpFiles(src, dialect)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		sqlBytes, err := fs.ReadFile(src.FS, entry)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(sqlBytes), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}
