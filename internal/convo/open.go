package convo

import (
	"fmt"
	"os"
	"path/filepath"
)

// OpenLibrary opens the named-context backend: "dir", "sqlite" or "bolt".
func OpenLibrary(backend, dir, dbPath string) (Library, error) {
	switch backend {
	case "", "dir":
		return NewDirLibrary(dir)
	case "sqlite":
		return OpenSQLite(dbPath)
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
		return OpenBolt(dbPath)
	default:
		return nil, fmt.Errorf("unknown context backend: %s", backend)
	}
}
