package main

import (
	"context"
	"fmt"
	"time"

	"mcpman"
	"mcpman/internal/install"
	"mcpman/internal/registry"
)

type command struct {
	g *GlobalFlags
}

// List prints the status table for every configured server.
func (c command) List() error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	statuses, err := mgr.List()
	if err != nil {
		return err
	}
	a.rend.ServerTable(statuses)
	return nil
}

// Start launches one configured server.
func (c command) Start(name string) error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	statuses, err := mgr.List()
	if err != nil {
		return err
	}
	if st := statusFor(statuses, name); st != nil && st.Running {
		a.rend.Warnf("Server '%s' is already running (PID %d)", name, st.PID)
		return nil
	}
	if err := mgr.Start(name); err != nil {
		return err
	}
	a.rend.Successf("Started server '%s'", name)
	return nil
}

// Stop terminates one running server.
func (c command) Stop(name string) error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	statuses, err := mgr.List()
	if err != nil {
		return err
	}
	if st := statusFor(statuses, name); st != nil && !st.Running {
		a.rend.Warnf("Server '%s' is not running", name)
		return nil
	}
	if err := mgr.Stop(name); err != nil {
		return err
	}
	a.rend.Successf("Stopped server '%s'", name)
	return nil
}

// Restart stops and relaunches one server.
func (c command) Restart(name string) error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	if err := mgr.Restart(name); err != nil {
		return err
	}
	a.rend.Successf("Restarted server '%s'", name)
	return nil
}

// StartAll launches every configured server that is not already running.
func (c command) StartAll() error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	results := mgr.StartAll()
	for _, r := range results {
		if r.Err != nil {
			a.rend.Errorf("Failed to start '%s': %v", r.Name, r.Err)
		} else {
			a.rend.Successf("Started '%s'", r.Name)
		}
	}
	a.rend.Printf("Started %d out of %d servers", mcpman.Succeeded(results), len(results))
	return nil
}

// StopAll terminates every configured server that is running.
func (c command) StopAll() error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	results, err := mgr.StopAll()
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			a.rend.Errorf("Failed to stop '%s': %v", r.Name, r.Err)
		} else {
			a.rend.Successf("Stopped '%s'", r.Name)
		}
	}
	a.rend.Printf("Stopped %d out of %d servers", mcpman.Succeeded(results), len(results))
	return nil
}

// Functions lists the functions a configured server exposes. The server must
// be running to answer; a stopped one is started for the occasion.
func (c command) Functions(ctx context.Context, name string) error {
	a, err := newApp(c.g)
	if err != nil {
		return err
	}
	defer a.Close()

	spec, ok := a.store.Get(name)
	if !ok {
		return &mcpman.UnknownServerError{Name: name}
	}

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	statuses, err := mgr.List()
	if err != nil {
		return err
	}
	if st := statusFor(statuses, name); st == nil || !st.Running {
		a.rend.Warnf("Server '%s' is not running, starting it...", name)
		if err := mgr.Start(name); err != nil {
			return err
		}
		time.Sleep(a.settings.Lifecycle.SettleDelay)
		statuses, err = mgr.List()
		if err != nil {
			return err
		}
		if st := statusFor(statuses, name); st == nil || !st.Running {
			return fmt.Errorf("server %q did not stay up after start", name)
		}
	}

	// Catalog entries may carry a function listing; otherwise fall back to
	// the built-in knowledge keyed by package name.
	var fns []registry.FunctionInfo
	if info, ok, err := a.registry().Lookup(ctx, name); err == nil && ok {
		fns = info.Functions
	}
	pkg := spec.Package
	if pkg == "" {
		pkg = install.PackageFromArgs(spec.Args)
	}
	if len(fns) == 0 {
		if pkg == "" {
			return fmt.Errorf("cannot determine the package behind %q", name)
		}
		fns = builtinFunctions(pkg)
	}

	a.rend.Printf("Server: %s", name)
	if pkg != "" {
		a.rend.Printf("Package: %s", pkg)
	}
	a.rend.FunctionTable(fns)
	return nil
}
