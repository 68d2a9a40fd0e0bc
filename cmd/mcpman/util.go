package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"mcpman"
	"mcpman/internal/config"
	"mcpman/internal/install"
	"mcpman/internal/logger"
	"mcpman/internal/registry"
	"mcpman/internal/render"
	"mcpman/internal/store"
)

// app bundles the pieces a command invocation needs: settings, the mcp.json
// store, a logger and a renderer. Each command builds one app per run.
type app struct {
	settings config.Settings
	store    *store.Store
	logger   *slog.Logger
	rend     *render.Renderer
	logFile  io.Closer
}

func newApp(g *GlobalFlags) (*app, error) {
	settings, err := config.Load(g.SettingsPath)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		settings.Log.Level = g.LogLevel
	}

	// Log to the colored console handler and, when a log directory is
	// configured, to a rotated plain-text file as well.
	level := logger.ParseLevel(settings.Log.Level)
	handlers := []slog.Handler{logger.NewColorTextHandler(os.Stderr, level)}
	var logFile io.Closer
	if settings.Log.Dir != "" {
		w := logger.Rotation{
			Dir:        settings.Log.Dir,
			MaxSizeMB:  settings.Log.MaxSizeMB,
			MaxBackups: settings.Log.MaxBackups,
			MaxAgeDays: settings.Log.MaxAgeDays,
			Compress:   settings.Log.Compress,
		}.Writer()
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
		logFile = w
	}
	log := slog.New(logger.Tee(handlers...))

	path := g.ConfigPath
	if path == "" {
		if path, err = store.DefaultPath(); err != nil {
			return nil, err
		}
	}
	st, err := store.Load(path)
	if err != nil {
		log.Debug("starting with empty configuration", "path", path, "error", err)
	}

	return &app{
		settings: settings,
		store:    st,
		logger:   log,
		rend:     render.New(os.Stdout),
		logFile:  logFile,
	}, nil
}

// Close flushes the rotated log file, if one was opened.
func (a *app) Close() {
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

func (a *app) manager() (*mcpman.Manager, error) {
	return mcpman.New(mcpman.Config{
		Store:    a.store,
		Settings: &a.settings,
		Logger:   a.logger,
	})
}

func (a *app) registry() *registry.Client {
	return registry.New(registry.Config{
		URL:    a.settings.Registry.URL,
		TTL:    a.settings.Registry.CacheTTL,
		Logger: a.logger,
	})
}

func (a *app) installer() (*install.Installer, error) {
	return install.New(install.Config{
		Store:  a.store,
		Runner: install.ExecRunner{Timeout: install.DefaultRunTimeout, Stream: os.Stdout},
		Logger: a.logger,
	})
}

func statusFor(statuses []mcpman.Status, name string) *mcpman.Status {
	for i := range statuses {
		if statuses[i].Name == name {
			return &statuses[i]
		}
	}
	return nil
}

// parseVars turns repeated KEY=VALUE flag values into a map.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q, want KEY=VALUE", p)
		}
		vars[k] = v
	}
	return vars, nil
}

// interactive reports whether stdin is a terminal we can prompt on.
func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// collectValues fills install prompts from --var pairs first and the terminal
// second. A missing argument value without a terminal aborts; environment
// variables are optional and silently skipped when nobody can answer.
func collectValues(in *bufio.Reader, out io.Writer, canPrompt bool, prompts install.Prompts, provided map[string]string) (install.Values, error) {
	vals := install.Values{Args: map[string]string{}, Env: map[string]string{}}

	var missing []string
	for _, name := range prompts.Args {
		if v, ok := provided[name]; ok {
			vals.Args[name] = v
			continue
		}
		if !canPrompt {
			missing = append(missing, name)
			continue
		}
		v, err := promptLine(in, out, fmt.Sprintf("Enter value for %s: ", name))
		if err != nil {
			return install.Values{}, err
		}
		vals.Args[name] = v
	}
	if len(missing) > 0 {
		return install.Values{}, fmt.Errorf("missing values for %s (pass --var KEY=VALUE)", strings.Join(missing, ", "))
	}

	for _, p := range prompts.Env {
		if v, ok := provided[p.Key]; ok {
			vals.Env[p.Key] = v
			continue
		}
		if !canPrompt {
			continue
		}
		label := p.Key
		if p.Description != "" {
			label = fmt.Sprintf("%s (%s)", p.Key, p.Description)
		}
		v, err := promptLine(in, out, fmt.Sprintf("Enter value for %s, empty to skip: ", label))
		if err != nil {
			return install.Values{}, err
		}
		if v != "" {
			vals.Env[p.Key] = v
		}
	}
	return vals, nil
}

func promptLine(in *bufio.Reader, out io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return "", err
	}
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func askConfirm(in *bufio.Reader, out io.Writer, question string) (bool, error) {
	answer, err := promptLine(in, out, question+" [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// builtinFunctions returns the function listing for well-known server
// packages whose catalog entries do not carry one yet.
func builtinFunctions(pkg string) []registry.FunctionInfo {
	switch {
	case strings.Contains(pkg, "filesystem"):
		return []registry.FunctionInfo{
			{Name: "read_file", Description: "Read the contents of a file", Parameters: "path: string"},
			{Name: "write_file", Description: "Write content to a file", Parameters: "path: string, content: string"},
			{Name: "list_directory", Description: "List the contents of a directory", Parameters: "path: string"},
			{Name: "create_directory", Description: "Create a new directory", Parameters: "path: string"},
			{Name: "delete_file", Description: "Delete a file", Parameters: "path: string"},
			{Name: "move_file", Description: "Move or rename a file", Parameters: "source: string, destination: string"},
		}
	case strings.Contains(pkg, "browser-tools"):
		return []registry.FunctionInfo{
			{Name: "getConsoleLogs", Description: "Get browser console logs", Parameters: "None"},
			{Name: "getConsoleErrors", Description: "Get browser console errors", Parameters: "None"},
			{Name: "getNetworkLogs", Description: "Get browser network logs", Parameters: "None"},
			{Name: "takeScreenshot", Description: "Take a screenshot of the current page", Parameters: "None"},
			{Name: "runSEOAudit", Description: "Run an SEO audit on the current page", Parameters: "None"},
			{Name: "runDebuggerMode", Description: "Run debugger mode", Parameters: "None"},
		}
	case strings.Contains(pkg, "server-llm-txt"):
		return []registry.FunctionInfo{
			{Name: "list_llm_txt", Description: "List available LLM.txt files", Parameters: "None"},
			{Name: "get_llm_txt", Description: "Fetch an LLM.txt file by ID", Parameters: "id: number, page: number"},
			{Name: "search_llm_txt", Description: "Search within an LLM.txt file", Parameters: "id: number, queries: string[]"},
		}
	case strings.Contains(pkg, "mcp-shell"):
		return []registry.FunctionInfo{
			{Name: "connect", Description: "Connect to an MCP server", Parameters: "url: string"},
			{Name: "disconnect", Description: "Disconnect from the current server", Parameters: "None"},
			{Name: "list", Description: "List available functions", Parameters: "None"},
			{Name: "call", Description: "Call a function on the server", Parameters: "function: string, params: object"},
			{Name: "help", Description: "Show help for a function", Parameters: "function: string"},
		}
	}
	return []registry.FunctionInfo{
		{Name: "start", Description: "Start the server", Parameters: "None"},
		{Name: "stop", Description: "Stop the server", Parameters: "None"},
		{Name: "status", Description: "Check server status", Parameters: "None"},
		{Name: "version", Description: "Get server version", Parameters: "None"},
	}
}
