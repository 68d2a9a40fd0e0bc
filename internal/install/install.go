// Package install turns catalog entries into configured servers. Three
// flows exist, mirroring the catalog's installation types: npm entries are
// pure configuration writes (npx fetches the package on first launch), git
// entries are cloned and built under the user's server directory, and
// launcher-managed entries run their own installer once before the entry is
// recorded.
package install

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"mcpman/internal/manager"
	"mcpman/internal/registry"
	"mcpman/internal/store"
)

// Installation types recorded in the store and used for uninstall dispatch.
// Plain npm entries are stored without a type; absence means npm.
const (
	TypeNpm      = "npm"
	TypeGit      = "git"
	TypeSmithery = "smithery"
)

// installDirVar is the one placeholder filled by the installer rather than
// the user: the directory the server was installed into.
const installDirVar = "install_dir"

// npmUninstallTimeout bounds the global npm uninstall so a wedged npm cannot
// hang the command forever.
const npmUninstallTimeout = 30 * time.Second

// DefaultRunTimeout bounds each install subprocess (git, npm, launcher
// CLIs). Clones and builds can be slow; hung ones should still not pin the
// command forever.
const DefaultRunTimeout = 10 * time.Minute

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// EnvPrompt is an environment variable a catalog entry wants set. The
// catalog stores a human description where the value will go.
type EnvPrompt struct {
	Key         string
	Description string
}

// Prompts lists what an install flow needs from the user before it can
// write a runnable entry. Collecting the answers is the caller's job; the
// installer never reads a terminal.
type Prompts struct {
	Args []string // placeholder names found in args, in first appearance order
	Env  []EnvPrompt
}

// Values carries the collected answers. Env entries with empty values are
// dropped, matching the catalog's "press enter to skip" convention; arg
// placeholders accept empty strings as deliberate values.
type Values struct {
	Args map[string]string
	Env  map[string]string
}

// PromptsFor inspects a catalog entry and reports which values an install
// needs. The install_dir placeholder is excluded: the installer fills it.
func PromptsFor(info registry.ServerInfo) Prompts {
	var p Prompts
	seen := make(map[string]bool)
	for _, arg := range info.Args {
		for _, m := range placeholderRe.FindAllStringSubmatch(arg, -1) {
			name := m[1]
			if name == installDirVar || seen[name] {
				continue
			}
			seen[name] = true
			p.Args = append(p.Args, name)
		}
	}
	keys := make([]string, 0, len(info.Env))
	for k := range info.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.Env = append(p.Env, EnvPrompt{Key: k, Description: info.Env[k]})
	}
	return p
}

// Kind reports which install flow a catalog entry uses. Entries that launch
// through the smithery CLI are routed to the launcher flow even when the
// catalog predates the installation_type field.
func Kind(info registry.ServerInfo) string {
	switch {
	case info.InstallType == TypeGit:
		return TypeGit
	case info.InstallType == TypeSmithery:
		return TypeSmithery
	}
	for _, arg := range info.Args {
		if strings.Contains(arg, "@smithery/cli") {
			return TypeSmithery
		}
	}
	return TypeNpm
}

// Config holds installer dependencies.
type Config struct {
	Store   *store.Store
	Runner  Runner // defaults to ExecRunner with DefaultRunTimeout
	BaseDir string // server checkout root; empty means ~/.cursor/mcp_servers
	Logger  *slog.Logger
}

// Installer writes catalog entries into the configuration store, running
// whatever external tooling the entry's flow requires.
type Installer struct {
	store   *store.Store
	runner  Runner
	baseDir string
	logger  *slog.Logger
}

// DefaultBaseDir returns the directory source installs are checked out
// under (~/.cursor/mcp_servers).
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".cursor", "mcp_servers"), nil
}

// New creates an installer bound to a configuration store.
func New(cfg Config) (*Installer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("install: store is required")
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{Timeout: DefaultRunTimeout}
	}
	if cfg.BaseDir == "" {
		dir, err := DefaultBaseDir()
		if err != nil {
			return nil, err
		}
		cfg.BaseDir = dir
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Installer{
		store:   cfg.Store,
		runner:  cfg.Runner,
		baseDir: cfg.BaseDir,
		logger:  cfg.Logger,
	}, nil
}

// Npm records an npm-type entry. Nothing is downloaded: the stored command
// is an npx invocation that fetches the package on first launch.
func (i *Installer) Npm(info registry.ServerInfo, vals Values) (store.ServerSpec, error) {
	command := info.Command
	if command == "" {
		command = "npx"
	}
	args := info.Args
	if len(args) == 0 {
		if info.PackageName == "" {
			return store.ServerSpec{}, fmt.Errorf("catalog entry %q has neither args nor a package name", info.Name)
		}
		args = []string{"-y", info.PackageName}
	}
	args, err := substituteArgs(args, vals.Args, i.baseDir)
	if err != nil {
		return store.ServerSpec{}, err
	}
	spec := store.ServerSpec{
		Command:     command,
		Args:        args,
		Env:         cleanEnv(vals.Env),
		Description: info.Description,
		Package:     info.PackageName,
	}
	return spec, i.write(info.Name, spec)
}

// Git clones (or updates) the entry's repository under the base directory,
// runs its install steps, resolves the entry point and records the result.
func (i *Installer) Git(ctx context.Context, info registry.ServerInfo, vals Values) (store.ServerSpec, error) {
	if info.GitURL == "" {
		return store.ServerSpec{}, fmt.Errorf("catalog entry %q has no git URL", info.Name)
	}
	installDir := filepath.Join(i.baseDir, info.Name)
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return store.ServerSpec{}, fmt.Errorf("create %s: %w", installDir, err)
	}

	if _, err := os.Stat(filepath.Join(installDir, ".git")); err == nil {
		i.logger.Info("updating existing checkout", "dir", installDir)
		if _, stderr, err := i.runner.Run(ctx, installDir, "git", "pull"); err != nil {
			return store.ServerSpec{}, runErr("git pull", err, stderr)
		}
	} else {
		i.logger.Info("cloning repository", "url", info.GitURL, "dir", installDir)
		if _, stderr, err := i.runner.Run(ctx, "", "git", "clone", info.GitURL, installDir); err != nil {
			return store.ServerSpec{}, runErr("git clone", err, stderr)
		}
	}

	workDir := installDir
	if info.Subdir != "" {
		workDir = filepath.Join(installDir, info.Subdir)
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return store.ServerSpec{}, fmt.Errorf("create %s: %w", workDir, err)
		}
	}

	steps := info.InstallSteps
	if len(steps) == 0 {
		step := info.InstallCmd
		if step == "" {
			step = "npm install"
		}
		steps = []string{step}
	}
	for n, step := range steps {
		i.logger.Info("running install step", "step", n+1, "total", len(steps), "command", step)
		name, args := shellCommand(step)
		if _, stderr, err := i.runner.Run(ctx, workDir, name, args...); err != nil {
			return store.ServerSpec{}, runErr(fmt.Sprintf("install step %d (%s)", n+1, step), err, stderr)
		}
	}

	command := info.Command
	if command == "" {
		command = "node"
	}
	// Unlike the other flows, install_dir here means the checkout root.
	args, err := substituteArgs(info.Args, vals.Args, installDir)
	if err != nil {
		return store.ServerSpec{}, err
	}
	if info.MainFile != "" {
		mainPath, err := findMainFile(workDir, installDir, info.MainFile)
		if err != nil {
			return store.ServerSpec{}, err
		}
		if !slices.Contains(args, mainPath) && !slices.Contains(args, info.MainFile) {
			if len(args) == 0 || !looksLikeEntryFile(args[len(args)-1]) {
				args = append(args, mainPath)
			}
		}
	}

	spec := store.ServerSpec{
		Command:     command,
		Args:        args,
		Env:         cleanEnv(vals.Env),
		Description: info.Description,
		InstallType: TypeGit,
		InstallDir:  workDir,
	}
	return spec, i.write(info.Name, spec)
}

// Smithery runs a launcher-managed entry's own command once, streamed, so
// the launcher can fetch and register whatever it needs, then records the
// same command as the server entry.
func (i *Installer) Smithery(ctx context.Context, info registry.ServerInfo, vals Values) (store.ServerSpec, error) {
	if len(info.Args) == 0 {
		return store.ServerSpec{}, fmt.Errorf("catalog entry %q has no launcher arguments", info.Name)
	}
	command := info.Command
	if command == "" {
		command = "npx"
	}
	args, err := substituteArgs(info.Args, vals.Args, i.baseDir)
	if err != nil {
		return store.ServerSpec{}, err
	}
	if err := os.MkdirAll(i.baseDir, 0o755); err != nil {
		return store.ServerSpec{}, fmt.Errorf("create %s: %w", i.baseDir, err)
	}
	i.logger.Info("running launcher install", "name", info.Name, "command", command)
	if _, stderr, err := i.runner.Run(ctx, i.baseDir, command, args...); err != nil {
		return store.ServerSpec{}, runErr("launcher install", err, stderr)
	}
	spec := store.ServerSpec{
		Command:     command,
		Args:        args,
		Env:         cleanEnv(vals.Env),
		Description: info.Description,
		InstallType: TypeSmithery,
	}
	return spec, i.write(info.Name, spec)
}

// Uninstall removes a configured server: npm entries get a best-effort
// global package removal, git entries lose their checkout, launcher entries
// only ever had the store entry. The store entry goes away in every case.
func (i *Installer) Uninstall(ctx context.Context, name string) error {
	spec, ok := i.store.Get(name)
	if !ok {
		return &manager.UnknownServerError{Name: name}
	}
	switch spec.InstallType {
	case TypeGit:
		if err := i.removeCheckout(name, spec); err != nil {
			return err
		}
	case TypeSmithery:
		// nothing on disk belongs to us
	default:
		i.npmUninstall(ctx, name, spec)
	}
	i.store.Remove(name)
	return i.store.Save()
}

// npmUninstall removes the globally installed package, if one can be named.
// Failure is a warning: the entry is being removed either way, and npx-style
// entries usually never installed anything globally to begin with.
func (i *Installer) npmUninstall(ctx context.Context, name string, spec store.ServerSpec) {
	pkg := spec.Package
	if pkg == "" {
		pkg = PackageFromArgs(spec.Args)
	}
	if pkg == "" {
		i.logger.Warn("could not determine npm package, removing configuration only", "name", name)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, npmUninstallTimeout)
	defer cancel()
	i.logger.Info("uninstalling npm package", "package", pkg)
	if _, stderr, err := i.runner.Run(ctx, "", "npm", "uninstall", "-g", pkg); err != nil {
		i.logger.Warn("npm uninstall failed", "package", pkg, "error", err, "stderr", strings.TrimSpace(stderr))
	}
}

// removeCheckout deletes a git install's checkout. The recorded directory
// may be a subdir of the checkout; the whole checkout under the base
// directory is removed. Anything outside the base directory is refused.
func (i *Installer) removeCheckout(name string, spec store.ServerSpec) error {
	if spec.InstallDir == "" {
		i.logger.Warn("git install has no recorded directory, removing configuration only", "name", name)
		return nil
	}
	base, err := filepath.Abs(i.baseDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", i.baseDir, err)
	}
	dir, err := filepath.Abs(spec.InstallDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", spec.InstallDir, err)
	}
	rel, err := filepath.Rel(base, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove %q: not under %s", spec.InstallDir, i.baseDir)
	}
	checkout := filepath.Join(base, strings.Split(rel, string(filepath.Separator))[0])
	i.logger.Info("removing checkout", "dir", checkout)
	if err := os.RemoveAll(checkout); err != nil {
		return fmt.Errorf("remove %s: %w", checkout, err)
	}
	return nil
}

// PackageFromArgs guesses the npm package a hand-written entry launches:
// the first argument that looks like a scoped package or carries an mcp
// marker. Empty when nothing plausible is found.
func PackageFromArgs(args []string) string {
	for _, arg := range args {
		if strings.Contains(arg, "@") {
			return arg
		}
		if strings.Contains(arg, "mcp-") || strings.HasSuffix(arg, "-mcp") {
			return arg
		}
	}
	return ""
}

func (i *Installer) write(name string, spec store.ServerSpec) error {
	i.store.Set(name, spec)
	if err := i.store.Save(); err != nil {
		return err
	}
	i.logger.Info("recorded server", "name", name, "command", spec.Command)
	return nil
}

// substituteArgs fills {placeholder} occurrences from vars, with
// install_dir supplied by the installer. Placeholders nobody has a value
// for are an error rather than a silently broken entry.
func substituteArgs(args []string, vars map[string]string, installDir string) ([]string, error) {
	out := make([]string, 0, len(args))
	var missing []string
	for _, arg := range args {
		expanded := placeholderRe.ReplaceAllStringFunc(arg, func(m string) string {
			name := m[1 : len(m)-1]
			if name == installDirVar {
				return installDir
			}
			if v, ok := vars[name]; ok {
				return v
			}
			missing = append(missing, name)
			return m
		})
		out = append(out, expanded)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		missing = slices.Compact(missing)
		return nil, fmt.Errorf("no value for placeholder %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// findMainFile locates the entry point: the working directory first, then
// the checkout root, then a recursive search of the whole checkout.
func findMainFile(workDir, installDir, name string) (string, error) {
	for _, dir := range []string{workDir, installDir} {
		p := filepath.Join(dir, name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	var found string
	_ = filepath.WalkDir(installDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, keep looking elsewhere
		}
		if !d.IsDir() && d.Name() == name {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if found == "" {
		return "", fmt.Errorf("main file %q not found under %s", name, installDir)
	}
	return found, nil
}

func looksLikeEntryFile(arg string) bool {
	return strings.HasSuffix(arg, ".js") || strings.HasSuffix(arg, ".py")
}

func cleanEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		if v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func runErr(action string, err error, stderr string) error {
	if s := strings.TrimSpace(stderr); s != "" {
		return fmt.Errorf("%s: %w: %s", action, err, s)
	}
	return fmt.Errorf("%s: %w", action, err)
}
