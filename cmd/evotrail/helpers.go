package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/joss/evotrail/internal/config"
	"github.com/joss/evotrail/internal/store"
)

// exitOnError prints an error message and exits. Store outages get an
// extra hint since they usually mean a locked or unreachable database.
func exitOnError(err error) {
	if store.IsUnavailable(err) {
		fmt.Fprintf(os.Stderr, "Error: store unavailable: %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// resolvePretty decides the output mode. An explicit --pretty always
// wins; otherwise EVOTRAIL_NO_COLOR or a non-terminal stdout forces
// plain output.
func resolvePretty(explicit, requested, noColor, tty bool) bool {
	if explicit {
		return requested
	}
	if noColor || !tty {
		return false
	}
	return requested
}

// resolveAuthor picks the change author: explicit flag, then
// EVOTRAIL_AUTHOR, then the OS user.
func resolveAuthor(flag string) string {
	if flag != "" {
		return flag
	}
	if a := config.Env().Author; a != "" {
		return a
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

// expandGlobs resolves doublestar patterns to absolute paths. Literal
// arguments (no glob metacharacters) pass through even when the file
// does not exist yet, so planned files can be attached up front.
func expandGlobs(args []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)

	add := func(p string) {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if !seen[abs] {
			seen[abs] = true
			paths = append(paths, abs)
		}
	}

	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			add(arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err == nil && info.IsDir() {
				continue
			}
			add(m)
		}
	}
	return paths, nil
}

// formatSize renders a byte count for humans.
func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
