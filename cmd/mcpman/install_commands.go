package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"mcpman"
	"mcpman/internal/install"
	"mcpman/internal/registry"
)

// Available prints the registry catalog with installed servers marked.
func (c command) Available(ctx context.Context) error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	infos, err := a.registry().Available(ctx)
	if err != nil {
		return err
	}
	installed := make(map[string]bool, a.store.Len())
	for _, n := range a.store.Names() {
		installed[n] = true
	}
	a.rend.CatalogTable(infos, installed)
	return nil
}

// Install resolves a registry entry and installs it, prompting for any
// placeholder arguments and environment variables not given via --var.
func (c command) Install(ctx context.Context, name string, f *InstallFlags) error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	info, ok, err := a.registry().Lookup(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("server %q not found in the registry; try 'mcpman available'", name)
	}

	provided, err := parseVars(f.Vars)
	if err != nil {
		return err
	}
	prompts := install.PromptsFor(info)
	vals, err := collectValues(bufio.NewReader(os.Stdin), os.Stderr, interactive(), prompts, provided)
	if err != nil {
		return err
	}

	ins, err := a.installer()
	if err != nil {
		return err
	}
	var spec mcpman.ServerSpec
	switch install.Kind(info) {
	case install.TypeGit:
		spec, err = ins.Git(ctx, info, vals)
	case install.TypeSmithery:
		spec, err = ins.Smithery(ctx, info, vals)
	default:
		spec, err = ins.Npm(info, vals)
	}
	if err != nil {
		return fmt.Errorf("installation failed: %w", err)
	}

	a.rend.Successf("Successfully installed '%s'", name)
	a.rend.Printf("Launch command: %s %s", spec.Command, strings.Join(spec.Args, " "))
	for _, p := range prompts.Env {
		if _, ok := vals.Env[p.Key]; ok {
			a.rend.Successf("  %s: set", p.Key)
		} else {
			a.rend.Warnf("  %s: skipped, edit %s to add it", p.Key, a.store.Path())
		}
	}
	return nil
}

// InstallGit installs a server straight from a git repository, without a
// registry entry.
func (c command) InstallGit(ctx context.Context, url string, f *InstallGitFlags) error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	name := f.Name
	if name == "" {
		name = strings.TrimSuffix(path.Base(url), ".git")
	}
	info := registry.ServerInfo{
		Name:         name,
		Description:  fmt.Sprintf("MCP server installed from %s", url),
		InstallType:  install.TypeGit,
		GitURL:       url,
		Subdir:       f.Subdir,
		InstallSteps: f.Steps,
		Command:      f.Command,
		MainFile:     f.MainFile,
	}

	ins, err := a.installer()
	if err != nil {
		return err
	}
	spec, err := ins.Git(ctx, info, install.Values{})
	if err != nil {
		return fmt.Errorf("installation failed: %w", err)
	}
	a.rend.Successf("Server '%s' installed from %s", name, url)
	a.rend.Printf("Launch command: %s %s", spec.Command, strings.Join(spec.Args, " "))
	return nil
}

// Uninstall stops a server if needed, removes what the install put on disk
// and deletes its configuration entry.
func (c command) Uninstall(ctx context.Context, name string, f *UninstallFlags) error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, ok := a.store.Get(name); !ok {
		return &mcpman.UnknownServerError{Name: name}
	}
	if !f.Yes {
		if !interactive() {
			return fmt.Errorf("uninstall needs confirmation; rerun with --yes")
		}
		ok, err := askConfirm(bufio.NewReader(os.Stdin), os.Stderr, fmt.Sprintf("Uninstall '%s'?", name))
		if err != nil {
			return err
		}
		if !ok {
			a.rend.Warnf("Aborted.")
			return nil
		}
	}

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	statuses, err := mgr.List()
	if err != nil {
		return err
	}
	if st := statusFor(statuses, name); st != nil && st.Running {
		a.rend.Warnf("Stopping server '%s' first...", name)
		if err := mgr.Stop(name); err != nil {
			return fmt.Errorf("stop %s before uninstall: %w", name, err)
		}
		time.Sleep(a.settings.Lifecycle.SettleDelay)
	}

	ins, err := a.installer()
	if err != nil {
		return err
	}
	if err := ins.Uninstall(ctx, name); err != nil {
		return err
	}
	a.rend.Successf("Successfully uninstalled '%s'", name)
	return nil
}

// Update refreshes the registry cache unconditionally.
func (c command) Update(ctx context.Context) error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := a.registry().Update(ctx)
	if err != nil {
		return fmt.Errorf("registry update failed: %w", err)
	}
	a.rend.Successf("Registry updated: %d servers available", count)
	return nil
}
