// Package mcpman manages MCP servers configured for the Cursor editor:
// starting and stopping them as detached processes, matching already-running
// processes back to their configuration entries, and guarding every
// termination behind safety checks so a heuristic match can never kill an
// unrelated process.
package mcpman

import (
	"log/slog"

	"mcpman/internal/config"
	"mcpman/internal/env"
	ilog "mcpman/internal/logger"
	"mcpman/internal/manager"
	"mcpman/internal/match"
	"mcpman/internal/proc"
	"mcpman/internal/store"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type ServerSpec = store.ServerSpec

type Store = store.Store

type Settings = config.Settings

type Status = manager.Status

type Result = manager.Result

// Manager is a thin facade over internal/manager.Manager wired with the
// real process table and spawner. It provides a stable API for embedding.
type Manager struct{ inner *manager.Manager }

// Config assembles a Manager. Zero values mean the editor defaults: the
// store at ~/.cursor/mcp.json and built-in settings.
type Config struct {
	Store     *Store    // wins over StorePath when set
	StorePath string    // mcp.json location; empty means the editor default
	Settings  *Settings // nil means config.Default()
	Logger    *slog.Logger
}

// New builds a Manager against the live system process table.
func New(cfg Config) (*Manager, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := config.Default()
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}
	st := cfg.Store
	if st == nil {
		path := cfg.StorePath
		if path == "" {
			p, err := store.DefaultPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		loaded, err := store.Load(path)
		if err != nil {
			logger.Debug("starting with empty configuration", "error", err)
		}
		st = loaded
	}
	spawner := &manager.ExecSpawner{
		Env:     env.New(),
		Capture: ilog.Capture{Dir: settings.Log.Dir},
		Logger:  logger,
	}
	inner := manager.New(st, matcherFor(settings), proc.System(), spawner, settings, logger)
	return &Manager{inner: inner}, nil
}

func (m *Manager) List() ([]Status, error)        { return m.inner.List() }
func (m *Manager) Start(name string) error        { return m.inner.Start(name) }
func (m *Manager) Stop(name string) error         { return m.inner.Stop(name) }
func (m *Manager) Restart(name string) error      { return m.inner.Restart(name) }
func (m *Manager) StartAll() []Result             { return m.inner.StartAll() }
func (m *Manager) StopAll() ([]Result, error)     { return m.inner.StopAll() }

// Succeeded counts results without an error.
func Succeeded(results []Result) int { return manager.Succeeded(results) }

// LoadSettings reads the optional settings file. An empty path checks the
// default locations.
func LoadSettings(path string) (Settings, error) { return config.Load(path) }

// NewStore returns an empty configuration store bound to path.
func NewStore(path string) *Store { return store.New(path) }

// LoadStore reads the configuration store at path. The error is advisory:
// a missing or malformed file still yields a usable empty store bound to
// the same path.
func LoadStore(path string) (*Store, error) { return store.Load(path) }

func matcherFor(s config.Settings) *match.Matcher {
	var overrides map[string]match.Rule
	if len(s.Match.Rules) > 0 {
		overrides = make(map[string]match.Rule, len(s.Match.Rules))
		for _, rc := range s.Match.Rules {
			overrides[rc.Name] = match.Rule{Patterns: rc.Patterns, Confirm: rc.Confirm, Exclusive: rc.Exclusive}
		}
	}
	return match.New(s.Safety.ExtraExclusions, overrides)
}
