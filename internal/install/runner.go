package install

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"time"
)

// Runner executes external tools (git, npm, installer CLIs). It exists so
// install flows can be tested without touching the network or a toolchain.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs commands with os/exec. When Stream is set, command output
// is copied there live in addition to being captured, so long builds show
// progress.
type ExecRunner struct {
	Timeout time.Duration // per-command ceiling; 0 means no limit
	Stream  io.Writer
}

func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	// #nosec G204 -- commands come from catalog entries the user chose to install
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var outBuf, errBuf bytes.Buffer
	if r.Stream != nil {
		cmd.Stdout = io.MultiWriter(&outBuf, r.Stream)
		cmd.Stderr = io.MultiWriter(&errBuf, r.Stream)
	} else {
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
	}
	err := cmd.Run()
	return outBuf.String(), errBuf.String(), err
}
