// Package migrations collects the SQL migration filesystems a host runs before
// the credential stores are used, and validates the resulting schema.
package migrations

import (
	"io/fs"
	"strings"
	"sync"
)

// Source is a labelled migration filesystem laid out with PostgreSQL files at
// the root and SQLite overrides under sqlite/.
type Source struct {
	Label string
	FS    fs.FS
}

var (
	mu      sync.RWMutex
	sources []Source
)

// Register records a migration filesystem. Hosts feed every registered source
// into go-persistence-bun via Sources(). Re-registering a label replaces it.
func Register(label string, fsys fs.FS) {
	if fsys == nil {
		return
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = "."
	}
	mu.Lock()
	defer mu.Unlock()
	for i := range sources {
		if sources[i].Label == label {
			sources[i].FS = fsys
			return
		}
	}
	sources = append(sources, Source{Label: label, FS: fsys})
}

// Sources returns a copy of all registered migration sources in registration order.
func Sources() []Source {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Source, len(sources))
	copy(out, sources)
	return out
}

// UpFiles lists the up migrations of src for dialect in apply order. SQLite
// reads the sqlite/ overrides; every other dialect reads the root files.
func UpFiles(src Source, dialect string) ([]string, error) {
	pattern := "*.up.sql"
	if normalizeDialect(dialect) == "sqlite" {
		pattern = "sqlite/*.up.sql"
	}
	return fs.Glob(src.FS, pattern)
}

func normalizeDialect(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql", "pg":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}
