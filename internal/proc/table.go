// Package proc provides a narrow view over the operating system's process
// table: enumeration for scanning, per-field inspection for display, and
// signal delivery for termination. The Table interface exists so the
// lifecycle layer can be tested against a fake table instead of live
// processes.
package proc

import (
	"errors"
	"time"
)

// ErrVanished reports that a process disappeared between being observed and
// being acted on. Callers treat it as a benign outcome, not a failure.
var ErrVanished = errors.New("process vanished")

// Snapshot is one process as seen during a scan.
type Snapshot struct {
	PID     int32
	Argv    []string
	Cmdline string
}

// Details carries the inspection fields shown to operators. Inspection is
// per-field: a field that cannot be read is left at its zero value and its
// name recorded in Missing, so one unreadable field never hides the rest.
type Details struct {
	PID     int32
	Cmdline string
	Cwd     string
	Started time.Time
	Ports   []uint32
	Missing []string
}

// Uptime returns how long the process has been running as of now, or zero
// when the start time could not be read.
func (d Details) Uptime(now time.Time) time.Duration {
	if d.Started.IsZero() {
		return 0
	}
	return now.Sub(d.Started)
}

// Table is the process-table surface the lifecycle controller depends on.
type Table interface {
	// Snapshots enumerates every visible process with a readable command
	// line. Processes that vanish or deny access mid-enumeration are
	// silently skipped.
	Snapshots() ([]Snapshot, error)
	// Inspect reads display fields for one process. It returns ErrVanished
	// when the process no longer exists; individual field failures are
	// reported through Details.Missing instead of an error.
	Inspect(pid int32) (Details, error)
	// Alive reports whether the process still exists.
	Alive(pid int32) bool
	// Terminate asks the process to exit (SIGTERM on Unix).
	Terminate(pid int32) error
	// Kill forcibly ends the process (SIGKILL on Unix).
	Kill(pid int32) error
	// ChildrenRecursive lists all descendant PIDs, parents before children.
	ChildrenRecursive(pid int32) []int32
}
