// Package manager implements the server lifecycle: scanning the process
// table for configured servers, starting and stopping them behind a safety
// gate, and the bulk operations built on top of the per-server ones.
package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"mcpman/internal/config"
	"mcpman/internal/match"
	"mcpman/internal/proc"
	"mcpman/internal/store"
)

// pollInterval is how often termination waits re-check liveness.
const pollInterval = 50 * time.Millisecond

// Status describes one configured server at scan time.
type Status struct {
	Name    string
	Spec    store.ServerSpec
	Running bool
	PID     int32
	Details proc.Details
}

// Result is the outcome of one server's operation within a bulk call.
type Result struct {
	Name string
	Err  error
}

// Succeeded counts the results that completed without error.
func Succeeded(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Manager ties the configuration store, the process matcher and the process
// table together. It holds no state of its own between calls: every
// operation begins with a fresh scan, so servers started or stopped outside
// the tool are always seen.
type Manager struct {
	store   *store.Store
	matcher *match.Matcher
	table   proc.Table
	spawner Spawner
	safety  config.SafetyConfig
	pace    config.LifecycleConfig
	logger  *slog.Logger
	sleep   func(time.Duration)
}

// New builds a Manager. A nil logger falls back to slog.Default.
func New(st *store.Store, m *match.Matcher, t proc.Table, sp Spawner, cfg config.Settings, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   st,
		matcher: m,
		table:   t,
		spawner: sp,
		safety:  cfg.Safety,
		pace:    cfg.Lifecycle,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// Scan walks the process table once and assigns each process to at most one
// configured server. When several processes match the same server, the
// first one seen is kept.
func (m *Manager) Scan() (map[string]proc.Snapshot, error) {
	snaps, err := m.table.Snapshots()
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}
	names := m.store.Names()
	specs := make(map[string]store.ServerSpec, len(names))
	for _, n := range names {
		s, _ := m.store.Get(n)
		specs[n] = s
	}
	found := make(map[string]proc.Snapshot)
	for _, snap := range snaps {
		owner, ok := m.matcher.Owner(snap.Argv, names, specs)
		if !ok {
			continue
		}
		if prev, dup := found[owner]; dup {
			m.logger.Debug("duplicate process for server", "server", owner, "pid", snap.PID, "kept", prev.PID)
			continue
		}
		found[owner] = snap
	}
	return found, nil
}

// List reports every configured server in configuration order, with live
// details for the running ones. Unreadable detail fields are reported
// through Details.Missing rather than failing the listing.
func (m *Manager) List() ([]Status, error) {
	found, err := m.Scan()
	if err != nil {
		return nil, err
	}
	statuses := make([]Status, 0, m.store.Len())
	for _, name := range m.store.Names() {
		spec, _ := m.store.Get(name)
		st := Status{Name: name, Spec: spec}
		if snap, ok := found[name]; ok {
			st.Running = true
			st.PID = snap.PID
			d, err := m.table.Inspect(snap.PID)
			switch {
			case errors.Is(err, proc.ErrVanished):
				// Gone between scan and inspect: report as stopped.
				st.Running = false
				st.PID = 0
			case err == nil:
				st.Details = d
				if len(d.Missing) > 0 {
					m.logger.Debug("partial inspection", "server", name, "pid", snap.PID, "missing", d.Missing)
				}
			}
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// Start launches the named server unless a matching process already exists.
// Starting a running server is a no-op, not an error.
func (m *Manager) Start(name string) error {
	spec, ok := m.store.Get(name)
	if !ok {
		return &UnknownServerError{Name: name}
	}
	found, err := m.Scan()
	if err != nil {
		return err
	}
	if snap, running := found[name]; running {
		m.logger.Info("server already running", "server", name, "pid", snap.PID)
		return nil
	}
	pid, err := m.spawner.Spawn(name, spec)
	if err != nil {
		return &SpawnError{Name: name, Cause: err}
	}
	m.logger.Info("server started", "server", name, "pid", pid)
	return nil
}

// Stop ends the named server's process if one is running. Stopping a
// stopped server is a no-op, not an error. A matched process only dies
// after it passes the safety gate; otherwise a RefusalError is returned.
func (m *Manager) Stop(name string) error {
	if _, ok := m.store.Get(name); !ok {
		return &UnknownServerError{Name: name}
	}
	found, err := m.Scan()
	if err != nil {
		return err
	}
	snap, running := found[name]
	if !running {
		m.logger.Info("server not running", "server", name)
		return nil
	}
	return m.terminate(name, snap)
}

// Restart stops the server, waits for it to settle, then starts it. A
// refusal (or any other stop failure) aborts the restart and propagates.
func (m *Manager) Restart(name string) error {
	if err := m.Stop(name); err != nil {
		return err
	}
	m.sleep(m.pace.SettleDelay)
	return m.Start(name)
}

// StartAll starts every configured server in configuration order, pacing
// consecutive launches. Failures are recorded per server and do not stop
// the sweep.
func (m *Manager) StartAll() []Result {
	names := m.store.Names()
	results := make([]Result, 0, len(names))
	for i, name := range names {
		results = append(results, Result{Name: name, Err: m.Start(name)})
		if i < len(names)-1 {
			m.sleep(m.pace.PacingDelay)
		}
	}
	return results
}

// StopAll stops the servers that are currently running, in configuration
// order, pacing consecutive terminations. Refusals are recorded per server
// and do not stop the sweep.
func (m *Manager) StopAll() ([]Result, error) {
	found, err := m.Scan()
	if err != nil {
		return nil, err
	}
	var running []string
	for _, name := range m.store.Names() {
		if _, ok := found[name]; ok {
			running = append(running, name)
		}
	}
	results := make([]Result, 0, len(running))
	for i, name := range running {
		results = append(results, Result{Name: name, Err: m.terminate(name, found[name])})
		if i < len(running)-1 {
			m.sleep(m.pace.PacingDelay)
		}
	}
	return results, nil
}

// terminate applies the safety gate and then ends the process tree, children
// first, gracefully and then forcibly. The gate re-checks the command line
// captured at scan time rather than trusting the match alone: scan matching
// accepts loose signals, termination does not.
func (m *Manager) terminate(name string, snap proc.Snapshot) error {
	if m.matcher.Excluded(snap.Cmdline) {
		return &RefusalError{Name: name, PID: snap.PID, Reason: ReasonExclusionMarker}
	}
	if !m.matcher.ConfirmForStop(snap.Cmdline, name) {
		return &RefusalError{Name: name, PID: snap.PID, Reason: ReasonSignatureMismatch}
	}
	d, err := m.table.Inspect(snap.PID)
	if errors.Is(err, proc.ErrVanished) {
		m.logger.Info("server already gone", "server", name, "pid", snap.PID)
		return nil
	}
	if m.safety.MaxProcessAge > 0 {
		switch {
		case d.Started.IsZero():
			m.logger.Warn("process age unreadable, proceeding", "server", name, "pid", snap.PID)
		case time.Since(d.Started) > m.safety.MaxProcessAge:
			return &RefusalError{Name: name, PID: snap.PID, Reason: ReasonAgeThreshold}
		}
	}

	// Children first, so the parent cannot respawn or orphan them mid-stop.
	kids := m.table.ChildrenRecursive(snap.PID)
	for _, kid := range kids {
		if err := m.table.Terminate(kid); err != nil && !errors.Is(err, proc.ErrVanished) {
			m.logger.Debug("terminate child", "server", name, "pid", kid, "error", err)
		}
	}
	for _, kid := range m.waitGone(kids, m.pace.GracePeriod) {
		if err := m.table.Kill(kid); err != nil && !errors.Is(err, proc.ErrVanished) {
			m.logger.Debug("kill child", "server", name, "pid", kid, "error", err)
		}
	}

	switch err := m.table.Terminate(snap.PID); {
	case err == nil:
	case errors.Is(err, proc.ErrVanished):
		m.logger.Info("server stopped", "server", name, "pid", snap.PID)
		return nil
	case errors.Is(err, syscall.EPERM):
		// Inaccessible counts as handled, same as vanished.
		m.logger.Warn("no permission to signal, treating as handled", "server", name, "pid", snap.PID)
		return nil
	default:
		return fmt.Errorf("stop %s (pid %d): %w", name, snap.PID, err)
	}

	if len(m.waitGone([]int32{snap.PID}, m.pace.GracePeriod)) == 0 {
		m.logger.Info("server stopped", "server", name, "pid", snap.PID)
		return nil
	}
	switch err := m.table.Kill(snap.PID); {
	case err == nil, errors.Is(err, proc.ErrVanished):
	case errors.Is(err, syscall.EPERM):
		m.logger.Warn("no permission to kill, treating as handled", "server", name, "pid", snap.PID)
		return nil
	default:
		return fmt.Errorf("kill %s (pid %d): %w", name, snap.PID, err)
	}
	m.logger.Info("server killed after grace period", "server", name, "pid", snap.PID)
	return nil
}

// waitGone polls until the given pids exit or the grace period lapses and
// returns the survivors.
func (m *Manager) waitGone(pids []int32, grace time.Duration) []int32 {
	var remaining []int32
	for _, pid := range pids {
		if m.table.Alive(pid) {
			remaining = append(remaining, pid)
		}
	}
	for elapsed := time.Duration(0); len(remaining) > 0 && elapsed < grace; elapsed += pollInterval {
		m.sleep(pollInterval)
		alive := remaining[:0]
		for _, pid := range remaining {
			if m.table.Alive(pid) {
				alive = append(alive, pid)
			}
		}
		remaining = alive
	}
	return remaining
}
