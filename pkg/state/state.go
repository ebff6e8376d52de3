// Package state owns the on-disk runtime layout under the data path:
// the pebble store plus the state/ folder holding reconcile artifacts,
// telemetry output and scratch space.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Paths struct {
	DB        string
	Store     string
	State     string
	Reconcile string
	Tmp       string
	Tel       string
	Logs      string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:    dbPath,
		Store: filepath.Join(dbPath, "store"),

		State:     statePath,
		Reconcile: filepath.Join(statePath, "reconcile"),
		Tmp:       filepath.Join(statePath, "tmp"),
		Tel:       filepath.Join(statePath, "telemetry"),
		Logs:      filepath.Join(statePath, "logs"),
	}
}

var (
	PathsVar Paths
	initOnce sync.Once
	initErr  error
)

// Init resolves the canonical paths for the given data directory and
// creates them. Safe to call more than once; only the first call wins.
func Init(dbPath string) error {
	initOnce.Do(func() {
		path := strings.TrimSpace(dbPath)
		if path == "" {
			path = "./.database"
		}
		path = filepath.Clean(path)
		PathsVar = PathsFor(path)
		initErr = EnsureStateDirs(path)
	})
	return initErr
}

// EnsureStateDirs creates the runtime folder layout under the data path.
// It rejects symlinks and group/other-writable modes, and verifies each
// directory is writable by the process.
func EnsureStateDirs(dbPath string) error {
	p := PathsFor(dbPath)
	paths := []string{p.Store, p.Reconcile, p.Tmp, p.Tel, p.Logs}

	for _, dir := range paths {
		if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", dir, err)
		}

		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", dir)
			}
			if fi.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode (group/other write): %s", dir)
			}
		}

		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", dir, err)
		}

		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink after creation: %s", dir)
			}
			if fi.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode after creation: %s", dir)
			}
		}

		// writability check: create and remove a temp file
		tmp, err := os.CreateTemp(dir, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", dir, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	return nil
}
