// Package selftest provides runtime environment validation and self-diagnostics.
package selftest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/joss/evotrail/internal/config"
	"github.com/joss/evotrail/internal/store"
)

// Environment describes the runtime environment.
type Environment struct {
	HasTTY         bool
	HomeWritable   bool
	StoreReachable bool
	StorePath      string
	ChangeCount    int
	ProcSampling   bool
	PreviewBytes   int
	Warnings       []string
	Errors         []string
}

// Check performs a complete environment validation against the
// configured store path.
func Check() *Environment {
	env := &Environment{
		StorePath:    config.StorePath(),
		PreviewBytes: config.Env().PreviewBytes,
	}

	// TTY detection
	env.HasTTY = term.IsTerminal(int(os.Stdin.Fd()))

	env.checkHome()
	env.checkStore()
	env.checkProc()

	return env
}

func (e *Environment) checkHome() {
	dir := filepath.Dir(e.StorePath)
	if err := config.EnsureDir(dir); err != nil {
		e.Errors = append(e.Errors, fmt.Sprintf("cannot create %s: %v", dir, err))
		return
	}
	probe := filepath.Join(dir, ".evotrail-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		e.Errors = append(e.Errors, fmt.Sprintf("%s not writable: %v", dir, err))
		return
	}
	os.Remove(probe)
	e.HomeWritable = true
}

func (e *Environment) checkStore() {
	if !e.HomeWritable {
		return
	}
	st, err := store.Open(e.StorePath)
	if err != nil {
		e.Errors = append(e.Errors, fmt.Sprintf("store open failed: %v", err))
		return
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		e.Errors = append(e.Errors, fmt.Sprintf("store ping failed: %v", err))
		return
	}
	e.StoreReachable = true

	if n, err := st.CountChanges(ctx, store.Filter{}); err == nil {
		e.ChangeCount = n
	}
}

func (e *Environment) checkProc() {
	if _, err := os.ReadFile("/proc/self/stat"); err != nil {
		e.Warnings = append(e.Warnings,
			"/proc not readable: CPU and IO sampling will report zeros")
		return
	}
	e.ProcSampling = true
}

// IsHealthy returns true if the environment can track changes.
func (e *Environment) IsHealthy() bool {
	return len(e.Errors) == 0 && e.StoreReachable
}

// Summary returns a human-readable summary.
func (e *Environment) Summary() string {
	var sb strings.Builder

	sb.WriteString("EVOTRAIL ENVIRONMENT CHECK\n")
	sb.WriteString(strings.Repeat("─", 40) + "\n")

	ttyStatus := "No (plain output)"
	if e.HasTTY {
		ttyStatus = "Yes (pretty output available)"
	}
	sb.WriteString(fmt.Sprintf("TTY:          %s\n", ttyStatus))

	homeStatus := "NOT WRITABLE"
	if e.HomeWritable {
		homeStatus = "OK"
	}
	sb.WriteString(fmt.Sprintf("Home:         %s\n", homeStatus))

	storeStatus := "UNREACHABLE"
	if e.StoreReachable {
		storeStatus = fmt.Sprintf("OK (%d changes)", e.ChangeCount)
	}
	sb.WriteString(fmt.Sprintf("Store:        %s\n", storeStatus))
	sb.WriteString(fmt.Sprintf("Path:         %s\n", e.StorePath))

	procStatus := "Unavailable (metrics degrade to zeros)"
	if e.ProcSampling {
		procStatus = "OK"
	}
	sb.WriteString(fmt.Sprintf("Sampling:     %s\n", procStatus))
	sb.WriteString(fmt.Sprintf("Preview:      %d bytes\n", e.PreviewBytes))

	if len(e.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range e.Warnings {
			sb.WriteString(fmt.Sprintf("  ⚠ %s\n", w))
		}
	}

	if len(e.Errors) > 0 {
		sb.WriteString("\nErrors:\n")
		for _, err := range e.Errors {
			sb.WriteString(fmt.Sprintf("  ✗ %s\n", err))
		}
	}

	sb.WriteString("\n")
	if e.IsHealthy() {
		sb.WriteString("Status: HEALTHY\n")
	} else {
		sb.WriteString("Status: UNHEALTHY - fix errors above\n")
	}

	return sb.String()
}

// QuickCheck returns a one-line status suitable for non-verbose output.
func (e *Environment) QuickCheck() string {
	if !e.IsHealthy() {
		return fmt.Sprintf("Environment unhealthy: %s", strings.Join(e.Errors, "; "))
	}

	mode := "plain"
	if e.HasTTY {
		mode = "pretty"
	}

	sampling := "sampling:off"
	if e.ProcSampling {
		sampling = "sampling:on"
	}

	return fmt.Sprintf("store:ok changes:%d mode:%s %s", e.ChangeCount, mode, sampling)
}
