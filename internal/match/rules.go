package match

// Rule declares how a named server shows up in a process command line when
// its package naming does not embed the server name predictably. Patterns
// are checked at scan time; Confirm patterns extend the stricter re-check
// applied before termination. Exclusive rules claim a process ahead of
// store-order matching when several servers' signatures overlap.
type Rule struct {
	Patterns  []string
	Confirm   []string
	Exclusive bool
}

// builtinRules covers well-known servers the generic prefix matching cannot
// identify on its own, e.g. launchers where the name appears only as a bare
// argument ("run e2b").
func builtinRules() map[string]Rule {
	return map[string]Rule{
		"filesystem": {
			Patterns: []string{
				"@modelcontextprotocol/server-filesystem",
				"mcp-server-filesystem",
			},
		},
		"memory": {
			Patterns: []string{
				"mcp-server-memory",
				"@modelcontextprotocol/server-memory",
			},
		},
		"sequential-thinking": {
			Patterns: []string{
				"mcp-server-sequential-thinking",
				"@modelcontextprotocol/server-sequential-thinking",
			},
		},
		"e2b": {
			Patterns: []string{
				"@smithery/cli run e2b",
				"run e2b",
				"@e2b/mcp-server",
				"e2b --config",
			},
			Confirm: []string{
				"@e2b/mcp-server",
				"@smithery/cli run e2b",
				"e2b --config",
			},
			Exclusive: true,
		},
	}
}

// defaultExclusions disqualify a process from ever being treated as a
// managed server. They protect the host editor, its helpers and its updater.
var defaultExclusions = []string{
	"Cursor.app",
	"cursor.app",
	"/Applications/Cursor",
	"Cursor Helper",
	"cursor_",
	"CursorUpdate",
}

// packagePrefixes are the runner forms under which a server name appears in
// a spawned command line.
var packagePrefixes = []string{
	"npm exec @modelcontextprotocol/server-",
	"npx @modelcontextprotocol/server-",
	"npm exec mcp-server-",
	"npx mcp-server-",
	"mcp-server-",
}
