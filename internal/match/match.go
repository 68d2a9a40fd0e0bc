// Package match classifies live OS processes against configured server
// entries using command-line heuristics. Identification is best-effort:
// exclusion markers are always checked first, then per-server rule patterns,
// then generic package prefixes, then signature tokens derived from the
// server's own spec. When one process satisfies several servers' signatures,
// ownership goes to the first exclusive rule that fires and otherwise to the
// first match in configuration order.
package match

import (
	"slices"
	"strings"

	"mcpman/internal/store"
)

// Matcher holds the exclusion markers and per-server rules used to decide
// whether a process belongs to a configured server.
type Matcher struct {
	rules      map[string]Rule
	exclusions []string
}

// New builds a Matcher from the built-in rule table merged with overrides.
// An override replaces the built-in rule of the same name wholesale. Extra
// exclusion markers extend the built-in set.
func New(extraExclusions []string, overrides map[string]Rule) *Matcher {
	rules := builtinRules()
	for name, r := range overrides {
		rules[name] = r
	}
	return &Matcher{
		rules:      rules,
		exclusions: append(slices.Clone(defaultExclusions), extraExclusions...),
	}
}

// Excluded reports whether the command line carries a marker that
// disqualifies the process from management regardless of any other signal.
func (m *Matcher) Excluded(cmdline string) bool {
	for _, marker := range m.exclusions {
		if strings.Contains(cmdline, marker) {
			return true
		}
	}
	return false
}

// Matches reports whether a process with the given argv belongs to the named
// server. Processes with fewer than two argv elements never match: a bare
// interpreter or binary without arguments carries no usable signature.
func (m *Matcher) Matches(argv []string, name string, spec store.ServerSpec) bool {
	if len(argv) < 2 {
		return false
	}
	cmdline := strings.Join(argv, " ")
	if m.Excluded(cmdline) {
		return false
	}
	if r, ok := m.rules[name]; ok && matchesRule(cmdline, r) {
		return true
	}
	for _, prefix := range packagePrefixes {
		if strings.Contains(cmdline, prefix+name) {
			return true
		}
	}
	for _, tok := range signatureTokens(name, spec) {
		if strings.Contains(cmdline, tok) {
			return true
		}
	}
	return false
}

// Owner assigns a process to at most one configured server. Exclusive rules
// are tried first so that overlapping signatures (a launcher invoking
// another server's package, say) land on the server that claimed them;
// after that the first match in names order wins. The second return value
// is false when no server claims the process.
func (m *Matcher) Owner(argv []string, names []string, specs map[string]store.ServerSpec) (string, bool) {
	if len(argv) < 2 {
		return "", false
	}
	cmdline := strings.Join(argv, " ")
	if m.Excluded(cmdline) {
		return "", false
	}
	for _, name := range names {
		r, ok := m.rules[name]
		if !ok || !r.Exclusive {
			continue
		}
		if _, configured := specs[name]; !configured {
			continue
		}
		if matchesRule(cmdline, r) {
			return name, true
		}
	}
	for _, name := range names {
		spec, configured := specs[name]
		if !configured {
			continue
		}
		if m.Matches(argv, name, spec) {
			return name, true
		}
	}
	return "", false
}

// ConfirmForStop applies the stricter re-check required before terminating a
// process. Scan-time matching may rely on loose signals; termination demands
// that the command line still carries a recognizable server pattern.
func (m *Matcher) ConfirmForStop(cmdline, name string) bool {
	patterns := []string{
		"mcp-server-" + name,
		"server-" + name,
		"@modelcontextprotocol/server-" + name,
	}
	if r, ok := m.rules[name]; ok {
		patterns = append(patterns, r.Confirm...)
	}
	for _, p := range patterns {
		if strings.Contains(cmdline, p) {
			return true
		}
	}
	return false
}

func matchesRule(cmdline string, r Rule) bool {
	for _, p := range r.Patterns {
		if strings.Contains(cmdline, p) {
			return true
		}
	}
	return false
}

// signatureTokens extracts identifying tokens from the server's configured
// arguments: scoped package names, mcp-server-* package names and the bare
// server name itself. Runner flags like "-y" carry no signature and are
// skipped.
func signatureTokens(name string, spec store.ServerSpec) []string {
	var toks []string
	for _, arg := range spec.Args {
		switch {
		case strings.HasPrefix(arg, "@") && strings.Contains(arg, "/"):
			toks = append(toks, arg)
		case strings.HasPrefix(arg, "mcp-server-"):
			toks = append(toks, arg)
		case arg == name:
			toks = append(toks, arg)
		}
	}
	return toks
}
