package profile

import (
	"os"
	"strconv"
	"strings"
)

// clockTicksPerSec is the kernel's USER_HZ. Fixed at 100 on every
// mainstream Linux build; reading it portably needs cgo, which this
// tool avoids.
const clockTicksPerSec = 100

// cpuTicks returns utime+stime for the current process from
// /proc/self/stat. ok is false when the file is absent or malformed,
// which covers every non-Linux platform.
func cpuTicks() (uint64, bool) {
	raw, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0, false
	}
	// The comm field is parenthesized and may contain spaces; the
	// stable part of the line starts after the closing paren.
	text := string(raw)
	i := strings.LastIndexByte(text, ')')
	if i < 0 {
		return 0, false
	}
	fields := strings.Fields(text[i+1:])
	// After ')' the fields are state(0) ... utime(11) stime(12).
	if len(fields) < 13 {
		return 0, false
	}
	utime, err1 := strconv.ParseUint(fields[11], 10, 64)
	stime, err2 := strconv.ParseUint(fields[12], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return utime + stime, true
}

type ioSample struct {
	readBytes  int64
	writeBytes int64
}

// ioCounters reads cumulative storage-layer byte counts from
// /proc/self/io.
func ioCounters() (ioSample, bool) {
	raw, err := os.ReadFile("/proc/self/io")
	if err != nil {
		return ioSample{}, false
	}
	var s ioSample
	seen := 0
	for _, line := range strings.Split(string(raw), "\n") {
		key, val, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			continue
		}
		switch key {
		case "read_bytes":
			s.readBytes = n
			seen++
		case "write_bytes":
			s.writeBytes = n
			seen++
		}
	}
	return s, seen == 2
}

type netSample struct {
	rxBytes int64
	txBytes int64
}

// netCounters sums rx/tx bytes across all interfaces in the process
// network namespace, loopback excluded.
func netCounters() (netSample, bool) {
	raw, err := os.ReadFile("/proc/self/net/dev")
	if err != nil {
		return netSample{}, false
	}
	var s netSample
	lines := strings.Split(string(raw), "\n")
	if len(lines) < 3 {
		return netSample{}, false
	}
	for _, line := range lines[2:] {
		name, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.TrimSpace(name) == "lo" {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 9 {
			continue
		}
		if rx, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			s.rxBytes += rx
		}
		if tx, err := strconv.ParseInt(fields[8], 10, 64); err == nil {
			s.txBytes += tx
		}
	}
	return s, true
}
