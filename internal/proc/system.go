package proc

import (
	"errors"
	"os"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// SystemTable implements Table against the live OS process table.
type SystemTable struct{}

// System returns a Table backed by the running system.
func System() Table { return SystemTable{} }

func (SystemTable) Snapshots() ([]Snapshot, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(procs))
	for _, p := range procs {
		argv, err := p.CmdlineSlice()
		if err != nil || len(argv) == 0 {
			continue
		}
		out = append(out, Snapshot{PID: p.Pid, Argv: argv, Cmdline: strings.Join(argv, " ")})
	}
	return out, nil
}

func (SystemTable) Inspect(pid int32) (Details, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return Details{}, ErrVanished
	}
	d := Details{PID: pid}
	if cl, err := p.Cmdline(); err == nil && cl != "" {
		d.Cmdline = cl
	} else {
		d.Missing = append(d.Missing, "cmdline")
	}
	if wd, err := p.Cwd(); err == nil && wd != "" {
		d.Cwd = wd
	} else {
		d.Missing = append(d.Missing, "cwd")
	}
	if ms, err := p.CreateTime(); err == nil && ms > 0 {
		d.Started = time.UnixMilli(ms)
	} else {
		d.Missing = append(d.Missing, "started")
	}
	if conns, err := p.Connections(); err == nil {
		for _, c := range conns {
			if c.Status == "LISTEN" {
				d.Ports = append(d.Ports, c.Laddr.Port)
			}
		}
		slices.Sort(d.Ports)
		d.Ports = slices.Compact(d.Ports)
	} else {
		d.Missing = append(d.Missing, "ports")
	}
	return d, nil
}

func (SystemTable) Alive(pid int32) bool {
	running, err := process.PidExists(pid)
	return err == nil && running
}

func (SystemTable) Terminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return ErrVanished
	}
	return mapSignalErr(p.Terminate())
}

func (SystemTable) Kill(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return ErrVanished
	}
	return mapSignalErr(p.Kill())
}

func (SystemTable) ChildrenRecursive(pid int32) []int32 {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil
	}
	var out []int32
	seen := map[int32]bool{pid: true}
	var walk func(pp *process.Process)
	walk = func(pp *process.Process) {
		kids, err := pp.Children()
		if err != nil {
			return
		}
		for _, k := range kids {
			if seen[k.Pid] {
				continue
			}
			seen[k.Pid] = true
			out = append(out, k.Pid)
			walk(k)
		}
	}
	walk(p)
	return out
}

// mapSignalErr normalizes the "already gone" signal outcomes to ErrVanished
// so callers can treat them uniformly.
func mapSignalErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrorProcessNotRunning),
		errors.Is(err, os.ErrProcessDone),
		errors.Is(err, syscall.ESRCH):
		return ErrVanished
	default:
		return err
	}
}
