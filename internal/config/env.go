// Package config provides centralized configuration management.
// Eliminates scattered os.Getenv calls across the engine and CLI.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// DefaultPreviewBytes is the content preview budget for file snapshots.
const DefaultPreviewBytes = 500

// EvoEnv holds all EVOTRAIL environment variables.
type EvoEnv struct {
	// StorePath overrides the default database location (EVOTRAIL_STORE)
	StorePath string

	// Author is the default change author (EVOTRAIL_AUTHOR)
	Author string

	// PreviewBytes is the snapshot preview budget (EVOTRAIL_PREVIEW_BYTES)
	PreviewBytes int

	// NoColor disables colored CLI output (EVOTRAIL_NO_COLOR)
	NoColor bool

	// Debug enables debug-level logging (EVOTRAIL_DEBUG)
	Debug bool
}

var (
	env     *EvoEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *EvoEnv {
	envOnce.Do(func() {
		env = &EvoEnv{
			StorePath:    os.Getenv("EVOTRAIL_STORE"),
			Author:       os.Getenv("EVOTRAIL_AUTHOR"),
			PreviewBytes: getEnvInt("EVOTRAIL_PREVIEW_BYTES", DefaultPreviewBytes),
			NoColor:      os.Getenv("EVOTRAIL_NO_COLOR") == "1",
			Debug:        os.Getenv("EVOTRAIL_DEBUG") == "1",
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

// ResetPaths resets the cached path set (for testing).
func ResetPaths() {
	pathsOnce = sync.Once{}
	paths = nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// Paths holds standard evotrail directory paths.
type Paths struct {
	// Home is the evotrail home directory (~/.evotrail)
	Home string

	// Data is the data directory (~/.evotrail/data)
	Data string

	// Backups is the backups directory (~/.evotrail/backups)
	Backups string

	// Reports is the generated-reports directory (~/.evotrail/reports)
	Reports string

	// DBFile is the default database path (~/.evotrail/data/evolution.db)
	DBFile string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration. EVOTRAIL_HOME
// overrides the default ~/.evotrail root.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		evoHome := os.Getenv("EVOTRAIL_HOME")
		if evoHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				home = "."
			}
			evoHome = filepath.Join(home, ".evotrail")
		}

		paths = &Paths{
			Home:    evoHome,
			Data:    filepath.Join(evoHome, "data"),
			Backups: filepath.Join(evoHome, "backups"),
			Reports: filepath.Join(evoHome, "reports"),
			DBFile:  filepath.Join(evoHome, "data", "evolution.db"),
		}
	})
	return paths
}

// Path returns a path under the evotrail home directory.
// Equivalent to filepath.Join(~/.evotrail, parts...)
func Path(parts ...string) string {
	p := GetPaths()
	allParts := append([]string{p.Home}, parts...)
	return filepath.Join(allParts...)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// StorePath resolves the database path: env override first, default otherwise.
func StorePath() string {
	if p := Env().StorePath; p != "" {
		return p
	}
	return GetPaths().DBFile
}
