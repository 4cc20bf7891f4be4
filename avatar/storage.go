package avatar

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStorage writes images under Dir and serves them from BaseURL.
type FileStorage struct {
	Dir     string
	BaseURL string
}

var _ Storage = FileStorage{}

// Put writes body to Dir/name. The file only appears once fully written;
// partial writes are removed.
func (s FileStorage) Put(ctx context.Context, name, _ string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", errors.New("avatar: object name required")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.Dir, "."+name+".*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	cleanup := func(cause error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", cause
	}
	if _, err := io.Copy(tmp, body); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, filepath.Join(s.Dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	return publicURL(s.BaseURL, name), nil
}

func publicURL(base, name string) string {
	if base == "" {
		return name
	}
	return base + name
}
