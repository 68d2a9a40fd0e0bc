package manager

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"mcpman/internal/config"
	"mcpman/internal/match"
	"mcpman/internal/proc"
	"mcpman/internal/store"
)

type fakeTable struct {
	snaps      []proc.Snapshot
	details    map[int32]proc.Details
	alive      map[int32]bool
	children   map[int32][]int32
	stubborn   map[int32]bool // survives Terminate until Kill
	snapErr    error
	terminated []int32
	killed     []int32
}

func newFakeTable() *fakeTable {
	return &fakeTable{
		details:  make(map[int32]proc.Details),
		alive:    make(map[int32]bool),
		children: make(map[int32][]int32),
		stubborn: make(map[int32]bool),
	}
}

func (f *fakeTable) addProcess(pid int32, argv ...string) {
	f.snaps = append(f.snaps, proc.Snapshot{PID: pid, Argv: argv, Cmdline: strings.Join(argv, " ")})
	f.alive[pid] = true
	f.details[pid] = proc.Details{PID: pid, Cmdline: strings.Join(argv, " "), Started: time.Now().Add(-time.Minute)}
}

func (f *fakeTable) Snapshots() ([]proc.Snapshot, error) {
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	var out []proc.Snapshot
	for _, s := range f.snaps {
		if f.alive[s.PID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeTable) Inspect(pid int32) (proc.Details, error) {
	if d, ok := f.details[pid]; ok {
		return d, nil
	}
	return proc.Details{}, proc.ErrVanished
}

func (f *fakeTable) Alive(pid int32) bool { return f.alive[pid] }

func (f *fakeTable) Terminate(pid int32) error {
	f.terminated = append(f.terminated, pid)
	if !f.alive[pid] {
		return proc.ErrVanished
	}
	if !f.stubborn[pid] {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeTable) Kill(pid int32) error {
	f.killed = append(f.killed, pid)
	if !f.alive[pid] {
		return proc.ErrVanished
	}
	f.alive[pid] = false
	return nil
}

func (f *fakeTable) ChildrenRecursive(pid int32) []int32 { return f.children[pid] }

type fakeSpawner struct {
	nextPID int32
	errOn   map[string]error
	spawned []string
}

func (f *fakeSpawner) Spawn(name string, _ store.ServerSpec) (int32, error) {
	if err, ok := f.errOn[name]; ok {
		return 0, err
	}
	f.spawned = append(f.spawned, name)
	f.nextPID++
	return 1000 + f.nextPID, nil
}

type entry struct {
	name string
	spec store.ServerSpec
}

func memoryEntry() entry {
	return entry{"memory", store.ServerSpec{Command: "npx", Args: []string{"-y", "@modelcontextprotocol/server-memory"}}}
}

func memoryArgv() []string {
	return []string{"node", "/home/u/.npm/_npx/abc/node_modules/@modelcontextprotocol/server-memory/dist/index.js"}
}

func newTestManager(t *testing.T, table *fakeTable, sp Spawner, entries ...entry) *Manager {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "mcp.json"))
	for _, e := range entries {
		st.Set(e.name, e.spec)
	}
	cfg := config.Default()
	cfg.Lifecycle.GracePeriod = 200 * time.Millisecond
	m := New(st, match.New(nil, nil), table, sp, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.sleep = func(time.Duration) {}
	return m
}

func TestStartSpawnsWhenNotRunning(t *testing.T) {
	table := newFakeTable()
	sp := &fakeSpawner{}
	m := newTestManager(t, table, sp, memoryEntry())

	if err := m.Start("memory"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(sp.spawned) != 1 || sp.spawned[0] != "memory" {
		t.Fatalf("spawned = %v, want [memory]", sp.spawned)
	}
}

func TestStartIsNoopWhenAlreadyRunning(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	sp := &fakeSpawner{}
	m := newTestManager(t, table, sp, memoryEntry())

	if err := m.Start("memory"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(sp.spawned) != 0 {
		t.Fatalf("spawned = %v, want none", sp.spawned)
	}
}

func TestStartUnknownServer(t *testing.T) {
	m := newTestManager(t, newFakeTable(), &fakeSpawner{}, memoryEntry())

	err := m.Start("nope")
	var unknown *UnknownServerError
	if !errors.As(err, &unknown) || unknown.Name != "nope" {
		t.Fatalf("Start(nope) = %v, want UnknownServerError", err)
	}
}

func TestStartReportsSpawnCause(t *testing.T) {
	cause := errors.New("executable not found")
	sp := &fakeSpawner{errOn: map[string]error{"memory": cause}}
	m := newTestManager(t, newFakeTable(), sp, memoryEntry())

	err := m.Start("memory")
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Start = %v, want SpawnError", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("SpawnError should wrap the cause, got %v", err)
	}
}

func TestStopTerminatesChildrenFirst(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	table.children[100] = []int32{101, 102}
	table.alive[101] = true
	table.alive[102] = true
	m := newTestManager(t, table, &fakeSpawner{}, memoryEntry())

	if err := m.Stop("memory"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if want := []int32{101, 102, 100}; !slices.Equal(table.terminated, want) {
		t.Fatalf("terminated = %v, want %v", table.terminated, want)
	}
	if len(table.killed) != 0 {
		t.Fatalf("killed = %v, want none for a graceful exit", table.killed)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	table.children[100] = []int32{101}
	table.alive[101] = true
	table.stubborn[100] = true
	table.stubborn[101] = true
	m := newTestManager(t, table, &fakeSpawner{}, memoryEntry())

	if err := m.Stop("memory"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !slices.Contains(table.killed, int32(101)) {
		t.Fatalf("stubborn child not killed: %v", table.killed)
	}
	if !slices.Contains(table.killed, int32(100)) {
		t.Fatalf("stubborn server not killed: %v", table.killed)
	}
	if table.alive[100] || table.alive[101] {
		t.Fatal("processes still alive after escalation")
	}
}

func TestStopIsNoopWhenNotRunning(t *testing.T) {
	table := newFakeTable()
	m := newTestManager(t, table, &fakeSpawner{}, memoryEntry())

	if err := m.Stop("memory"); err != nil {
		t.Fatalf("Stop of a stopped server = %v, want nil", err)
	}
	if len(table.terminated) != 0 {
		t.Fatalf("terminated = %v, want none", table.terminated)
	}
}

func TestStopUnknownServer(t *testing.T) {
	m := newTestManager(t, newFakeTable(), &fakeSpawner{}, memoryEntry())

	var unknown *UnknownServerError
	if err := m.Stop("ghost"); !errors.As(err, &unknown) {
		t.Fatalf("Stop(ghost) = %v, want UnknownServerError", err)
	}
}

func TestGateRefusesExclusionMarker(t *testing.T) {
	table := newFakeTable()
	m := newTestManager(t, table, &fakeSpawner{}, memoryEntry())

	argv := []string{"/Applications/Cursor.app/Contents/MacOS/Cursor", "mcp-server-memory"}
	snap := proc.Snapshot{PID: 50, Argv: argv, Cmdline: strings.Join(argv, " ")}

	err := m.terminate("memory", snap)
	var refusal *RefusalError
	if !errors.As(err, &refusal) || refusal.Reason != ReasonExclusionMarker {
		t.Fatalf("terminate = %v, want exclusion refusal", err)
	}
	if len(table.terminated) != 0 {
		t.Fatal("no signal may be sent after a refusal")
	}
}

func TestStopRefusesSignatureMismatch(t *testing.T) {
	table := newFakeTable()
	// Claimed at scan time through the configured package token, but the
	// command line carries no per-name stop pattern.
	table.addProcess(100, "node", "/opt/@agentdeskai/browser-tools-mcp/dist/index.js")
	browser := entry{"browser", store.ServerSpec{Command: "npx", Args: []string{"-y", "@agentdeskai/browser-tools-mcp"}}}
	m := newTestManager(t, table, &fakeSpawner{}, browser)

	err := m.Stop("browser")
	var refusal *RefusalError
	if !errors.As(err, &refusal) || refusal.Reason != ReasonSignatureMismatch {
		t.Fatalf("Stop = %v, want signature refusal", err)
	}
	if len(table.terminated) != 0 {
		t.Fatal("no signal may be sent after a refusal")
	}
}

func TestStopRefusesOldProcess(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	d := table.details[100]
	d.Started = time.Now().Add(-25 * time.Hour)
	table.details[100] = d
	m := newTestManager(t, table, &fakeSpawner{}, memoryEntry())

	err := m.Stop("memory")
	var refusal *RefusalError
	if !errors.As(err, &refusal) || refusal.Reason != ReasonAgeThreshold {
		t.Fatalf("Stop = %v, want age refusal", err)
	}
	if len(table.terminated) != 0 {
		t.Fatal("no signal may be sent after a refusal")
	}
}

func TestStopVanishedIsBenign(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	delete(table.details, 100) // gone between scan and inspect
	m := newTestManager(t, table, &fakeSpawner{}, memoryEntry())

	if err := m.Stop("memory"); err != nil {
		t.Fatalf("Stop of a vanished process = %v, want nil", err)
	}
}

func TestRestartPropagatesRefusal(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	d := table.details[100]
	d.Started = time.Now().Add(-48 * time.Hour)
	table.details[100] = d
	sp := &fakeSpawner{}
	m := newTestManager(t, table, sp, memoryEntry())

	err := m.Restart("memory")
	var refusal *RefusalError
	if !errors.As(err, &refusal) {
		t.Fatalf("Restart = %v, want refusal to propagate", err)
	}
	if len(sp.spawned) != 0 {
		t.Fatal("restart must not start after a refused stop")
	}
}

func TestRestartStopsThenStarts(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	sp := &fakeSpawner{}
	m := newTestManager(t, table, sp, memoryEntry())

	var slept []time.Duration
	m.sleep = func(d time.Duration) { slept = append(slept, d) }

	if err := m.Restart("memory"); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if !slices.Contains(table.terminated, int32(100)) {
		t.Fatal("old process not terminated")
	}
	if len(sp.spawned) != 1 {
		t.Fatalf("spawned = %v, want one start", sp.spawned)
	}
	if !slices.Contains(slept, config.Default().Lifecycle.SettleDelay) {
		t.Fatalf("settle delay not applied between stop and start: %v", slept)
	}
}

func TestStartAllContinuesPastFailures(t *testing.T) {
	sp := &fakeSpawner{errOn: map[string]error{"beta": fmt.Errorf("boom")}}
	m := newTestManager(t, newFakeTable(), sp,
		entry{"alpha", store.ServerSpec{Command: "npx", Args: []string{"-y", "@x/alpha-mcp"}}},
		entry{"beta", store.ServerSpec{Command: "npx", Args: []string{"-y", "@x/beta-mcp"}}},
		entry{"gamma", store.ServerSpec{Command: "npx", Args: []string{"-y", "@x/gamma-mcp"}}},
	)

	var slept int
	m.sleep = func(time.Duration) { slept++ }

	results := m.StartAll()
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if got := Succeeded(results); got != 2 {
		t.Fatalf("Succeeded = %d, want 2", got)
	}
	if results[1].Name != "beta" || results[1].Err == nil {
		t.Fatalf("beta failure not recorded: %+v", results[1])
	}
	if slept != 2 {
		t.Fatalf("pacing sleeps = %d, want 2 (between launches)", slept)
	}
	if want := []string{"alpha", "gamma"}; !slices.Equal(sp.spawned, want) {
		t.Fatalf("spawned = %v, want %v", sp.spawned, want)
	}
}

func TestStopAllStopsOnlyRunning(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	m := newTestManager(t, table, &fakeSpawner{},
		memoryEntry(),
		entry{"filesystem", store.ServerSpec{Command: "npx", Args: []string{"-y", "@modelcontextprotocol/server-filesystem"}}},
	)

	results, err := m.StopAll()
	if err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if len(results) != 1 || results[0].Name != "memory" || results[0].Err != nil {
		t.Fatalf("results = %+v, want one clean memory stop", results)
	}
}

func TestStopAllEmptyWhenNothingRuns(t *testing.T) {
	m := newTestManager(t, newFakeTable(), &fakeSpawner{}, memoryEntry())

	results, err := m.StopAll()
	if err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %+v, want none", results)
	}
}

func TestListReportsConfigurationOrder(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	m := newTestManager(t, table, &fakeSpawner{},
		entry{"filesystem", store.ServerSpec{Command: "npx", Args: []string{"-y", "@modelcontextprotocol/server-filesystem"}}},
		memoryEntry(),
	)

	statuses, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if statuses[0].Name != "filesystem" || statuses[0].Running {
		t.Fatalf("statuses[0] = %+v, want stopped filesystem", statuses[0])
	}
	if statuses[1].Name != "memory" || !statuses[1].Running || statuses[1].PID != 100 {
		t.Fatalf("statuses[1] = %+v, want running memory at pid 100", statuses[1])
	}
	if statuses[1].Details.Cmdline == "" {
		t.Fatal("running server should carry inspected details")
	}
}

func TestListToleratesPartialInspection(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	d := table.details[100]
	d.Cwd = ""
	d.Missing = []string{"cwd", "ports"}
	table.details[100] = d
	m := newTestManager(t, table, &fakeSpawner{}, memoryEntry())

	statuses, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !statuses[0].Running {
		t.Fatal("partial inspection must not mark the server stopped")
	}
	if !slices.Contains(statuses[0].Details.Missing, "cwd") {
		t.Fatalf("Missing = %v, want cwd recorded", statuses[0].Details.Missing)
	}
}

func TestListVanishedReportsStopped(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	delete(table.details, 100)
	m := newTestManager(t, table, &fakeSpawner{}, memoryEntry())

	statuses, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if statuses[0].Running || statuses[0].PID != 0 {
		t.Fatalf("statuses[0] = %+v, want stopped after vanish", statuses[0])
	}
}

func TestScanKeepsFirstDuplicate(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, memoryArgv()...)
	table.addProcess(200, memoryArgv()...)
	m := newTestManager(t, table, &fakeSpawner{}, memoryEntry())

	found, err := m.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if snap, ok := found["memory"]; !ok || snap.PID != 100 {
		t.Fatalf("found = %+v, want first pid 100 kept", found)
	}
}

func TestScanNeverClaimsEditorProcesses(t *testing.T) {
	table := newFakeTable()
	table.addProcess(100, "/Applications/Cursor.app/Contents/MacOS/Cursor", "--type=utility", "mcp-server-memory")
	m := newTestManager(t, table, &fakeSpawner{}, memoryEntry())

	found, err := m.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("found = %+v, want nothing claimed", found)
	}
}

func TestScanErrorPropagates(t *testing.T) {
	table := newFakeTable()
	table.snapErr = errors.New("proc unavailable")
	m := newTestManager(t, table, &fakeSpawner{}, memoryEntry())

	if _, err := m.Scan(); err == nil {
		t.Fatal("Scan should propagate enumeration failure")
	}
	if err := m.Start("memory"); err == nil {
		t.Fatal("Start should propagate enumeration failure")
	}
}
