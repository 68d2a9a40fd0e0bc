// Package render writes the CLI's human-facing output: go-pretty tables for
// listings and colored one-liners for results. Nothing here is machine
// readable on purpose; scripts should read mcp.json instead.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"mcpman/internal/manager"
	"mcpman/internal/registry"
)

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

// Renderer writes tables and status lines to one output stream.
type Renderer struct {
	out io.Writer
	now func() time.Time
}

// New creates a renderer writing to out.
func New(out io.Writer) *Renderer {
	return &Renderer{out: out, now: time.Now}
}

// Successf prints a green line. A newline is appended.
func (r *Renderer) Successf(format string, a ...any) {
	_, _ = successColor.Fprintf(r.out, format+"\n", a...)
}

// Warnf prints a yellow line. A newline is appended.
func (r *Renderer) Warnf(format string, a ...any) {
	_, _ = warnColor.Fprintf(r.out, format+"\n", a...)
}

// Errorf prints a red line. A newline is appended.
func (r *Renderer) Errorf(format string, a ...any) {
	_, _ = errorColor.Fprintf(r.out, format+"\n", a...)
}

// Printf prints an uncolored line. A newline is appended.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format+"\n", a...)
}

// ServerTable renders the configured servers with their live state.
func (r *Renderer) ServerTable(statuses []manager.Status) {
	if len(statuses) == 0 {
		r.Warnf("No servers configured.")
		return
	}
	t := r.newTable("Cursor MCP Servers")
	t.AppendHeader(table.Row{"Name", "Status", "PID", "Ports", "Uptime", "Description"})
	for _, st := range statuses {
		pid, ports, uptime := "-", "-", "-"
		state := text.FgYellow.Sprint("Stopped")
		if st.Running {
			state = text.FgGreen.Sprint("Running")
			pid = strconv.Itoa(int(st.PID))
			ports = formatPorts(st.Details.Ports)
			if d := st.Details.Uptime(r.now()); d > 0 {
				uptime = d.Truncate(time.Second).String()
			}
		}
		t.AppendRow(table.Row{st.Name, state, pid, ports, uptime, describe(st.Spec.Description)})
	}
	t.Render()
}

// CatalogTable renders the installable catalog. installed marks names that
// already have a store entry.
func (r *Renderer) CatalogTable(infos []registry.ServerInfo, installed map[string]bool) {
	if len(infos) == 0 {
		r.Warnf("No servers in the registry.")
		return
	}
	t := r.newTable("Available MCP Servers")
	t.AppendHeader(table.Row{"Name", "Description", "Package", "Author", "Installed"})
	for _, info := range infos {
		pkg := info.PackageName
		if pkg == "" {
			pkg = info.GitURL
		}
		mark := ""
		if installed[info.Name] {
			mark = text.FgGreen.Sprint("yes")
		}
		t.AppendRow(table.Row{info.Name, truncate(info.Description, 60), pkg, info.Author, mark})
	}
	t.Render()
}

// FunctionTable renders the callable functions a server exposes.
func (r *Renderer) FunctionTable(fns []registry.FunctionInfo) {
	if len(fns) == 0 {
		r.Warnf("No function information available.")
		return
	}
	t := r.newTable("Available Functions")
	t.AppendHeader(table.Row{"Function Name", "Description", "Parameters"})
	for _, fn := range fns {
		t.AppendRow(table.Row{fn.Name, truncate(fn.Description, 60), fn.Parameters})
	}
	t.Render()
}

func (r *Renderer) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title)
	return t
}

func formatPorts(ports []uint32) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, ",")
}

func describe(s string) string {
	if s == "" {
		return "No description available"
	}
	return truncate(s, 60)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
