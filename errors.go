package mcpman

import (
	"mcpman/internal/manager"
	"mcpman/internal/proc"
)

// Typed failures surfaced by Manager operations, for use with errors.As.

type UnknownServerError = manager.UnknownServerError

type SpawnError = manager.SpawnError

// RefusalError means the safety gate blocked a stop; the matched process
// was left running on purpose.
type RefusalError = manager.RefusalError

type RefusalReason = manager.RefusalReason

const (
	ReasonExclusionMarker   = manager.ReasonExclusionMarker
	ReasonSignatureMismatch = manager.ReasonSignatureMismatch
	ReasonAgeThreshold      = manager.ReasonAgeThreshold
)

// ErrVanished marks the benign race where a process exited while an
// operation was inspecting or signaling it.
var ErrVanished = proc.ErrVanished
