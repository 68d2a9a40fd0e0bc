package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"mcpman/internal/env"
	"mcpman/internal/logger"
	"mcpman/internal/store"
)

// Spawner launches a server process and reports its PID.
type Spawner interface {
	Spawn(name string, spec store.ServerSpec) (int32, error)
}

// ExecSpawner starts servers with os/exec, detached into their own session
// so they survive the CLI exiting, with stdout/stderr captured to per-server
// files. The command runs directly, never through a shell: the configuration
// stores command and arguments separately.
type ExecSpawner struct {
	Env     *env.Env
	Capture logger.Capture
	Logger  *slog.Logger
}

func (s *ExecSpawner) Spawn(name string, spec store.ServerSpec) (int32, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return 0, errors.New("no command configured")
	}
	// #nosec G204 -- command and args come from the user's own configuration
	cmd := exec.Command(spec.Command, spec.Args...)
	if spec.InstallDir != "" {
		cmd.Dir = spec.InstallDir
	}
	envm := s.Env
	if envm == nil {
		envm = env.New()
	}
	cmd.Env = envm.Merge(spec.Env)
	configureSysProcAttr(cmd)

	out, errf, err := s.Capture.Files(name)
	if err != nil {
		return 0, fmt.Errorf("open capture files: %w", err)
	}
	if out != nil {
		cmd.Stdout = out
		cmd.Stderr = errf
		// The child inherits the descriptors; these are the parent's copies.
		defer func() {
			_ = out.Close()
			_ = errf.Close()
		}()
	} else if null, nerr := os.OpenFile(os.DevNull, os.O_RDWR, 0); nerr == nil {
		cmd.Stdout = null
		cmd.Stderr = null
		defer func() { _ = null.Close() }()
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := int32(cmd.Process.Pid)
	// Detached child; nothing here will ever Wait on it.
	_ = cmd.Process.Release()
	if s.Logger != nil {
		s.Logger.Debug("spawned server process", "server", name, "pid", pid, "command", spec.Command)
	}
	return pid, nil
}
