package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureStateDir ensures the .ragforge directory exists under basePath.
// If basePath is empty or ".", it creates ./.ragforge in the working
// directory; otherwise {basePath}/.ragforge. The ragforge commands do not
// call it: the store's files are placed under store.data_dir directly.
func EnsureStateDir(basePath string) (string, error) {
	var stateDir string
	if basePath == "" || basePath == "." {
		stateDir = ".ragforge"
	} else {
		stateDir = filepath.Join(basePath, ".ragforge")
	}

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return "", fmt.Errorf("utils: failed to create state directory %q: %w", stateDir, err)
	}

	return stateDir, nil
}
