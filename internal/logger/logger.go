package logger

import (
	"io"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for the tool's diagnostic log.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Capture describes where a spawned server's stdout/stderr land. The files
// are plain append-mode handles the child inherits directly: the server
// outlives the CLI process, so anything pipe-backed would break the moment
// the CLI exits.
type Capture struct {
	Dir string // base directory for capture files; empty disables capture
}

// Files opens append-mode capture files for the named server
// (<dir>/<name>.stdout.log and <dir>/<name>.stderr.log). Both are nil when
// Dir is unset.
func (c Capture) Files(name string) (stdout, stderr *os.File, err error) {
	if c.Dir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return nil, nil, err
	}
	flags := os.O_CREATE | os.O_APPEND | os.O_WRONLY
	out, err := os.OpenFile(filepath.Join(c.Dir, name+".stdout.log"), flags, 0o644)
	if err != nil {
		return nil, nil, err
	}
	errf, err := os.OpenFile(filepath.Join(c.Dir, name+".stderr.log"), flags, 0o644)
	if err != nil {
		_ = out.Close()
		return nil, nil, err
	}
	return out, errf, nil
}

// Rotation configures the tool's own diagnostic log file. Unlike server
// capture files, this sink is written by the tool itself, so it can rotate.
type Rotation struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Writer returns a rotating writer for <dir>/mcpman.log.
func (r Rotation) Writer() io.WriteCloser {
	return &lj.Logger{
		Filename:   filepath.Join(r.Dir, "mcpman.log"),
		MaxSize:    valOr(r.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(r.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(r.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   r.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
