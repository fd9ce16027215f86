// Package sqlitepath resolves the conversation database location.
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvPath overrides the default database location.
const EnvPath = "ZYRA_SQLITE_PATH"

const (
	defaultDir  = ".zyra"
	defaultFile = "zyra.db"
)

// ResolveSQLitePath returns override when set, then $ZYRA_SQLITE_PATH, then
// ~/.zyra/zyra.db. The parent directory is created if it does not exist.
func ResolveSQLitePath(override string) (string, error) {
	path := override
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		path = filepath.Join(home, defaultDir, defaultFile)
	}

	if path == ":memory:" {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("could not create %s: %w", filepath.Dir(path), err)
	}
	return path, nil
}
