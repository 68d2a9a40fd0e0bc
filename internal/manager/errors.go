package manager

import "fmt"

// UnknownServerError reports an operation against a name that is not in the
// configuration store.
type UnknownServerError struct {
	Name string
}

func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("unknown server %q", e.Name)
}

// SpawnError reports that launching a server's process failed. The
// underlying cause is preserved for display.
type SpawnError struct {
	Name  string
	Cause error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Name, e.Cause)
}

func (e *SpawnError) Unwrap() error { return e.Cause }

// RefusalReason names which safety check blocked a termination.
type RefusalReason string

const (
	ReasonExclusionMarker   RefusalReason = "exclusion marker in command line"
	ReasonSignatureMismatch RefusalReason = "command line no longer carries a server signature"
	ReasonAgeThreshold      RefusalReason = "process older than the safety threshold"
)

// RefusalError reports that the safety gate blocked a termination. It is not
// a malfunction: the gate exists because process matching is heuristic and
// killing a mis-identified process is worse than leaving one running.
type RefusalError struct {
	Name   string
	PID    int32
	Reason RefusalReason
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("refusing to stop %s (pid %d): %s", e.Name, e.PID, e.Reason)
}
