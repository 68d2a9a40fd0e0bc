package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// serversKey is the top-level object holding configured servers in the
// editor's configuration file.
const serversKey = "mcpServers"

// FileName is the editor's MCP configuration file name.
const FileName = "mcp.json"

// ServerSpec is one configured server entry. The server name is the
// enclosing object key in the file, not a field.
type ServerSpec struct {
	Command     string            `json:"command"`
	Args        []string          `json:"args"`
	Env         map[string]string `json:"env,omitempty"`
	Description string            `json:"description,omitempty"`
	InstallType string            `json:"installation_type,omitempty"`
	InstallDir  string            `json:"install_dir,omitempty"`
	Package     string            `json:"package,omitempty"`
}

// Store holds the configured server map loaded from mcp.json. Entry order
// follows the file's object key order and is preserved through Save; the
// matcher's first-match-wins tie-break depends on it, so a plain Go map
// would not do.
type Store struct {
	path    string
	names   []string
	specs   map[string]ServerSpec
	topKeys []string
	extra   map[string]json.RawMessage // top-level siblings of mcpServers, kept verbatim
}

// DefaultPath returns the editor's MCP configuration file location
// (~/.cursor/mcp.json).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".cursor", FileName), nil
}

// New returns an empty store bound to path.
func New(path string) *Store {
	return &Store{
		path:    path,
		specs:   make(map[string]ServerSpec),
		topKeys: []string{serversKey},
		extra:   make(map[string]json.RawMessage),
	}
}

// Load reads the store file at path. A missing or malformed file yields an
// empty store bound to the same path; the returned error says why and is
// meant for debug logging, not for aborting the operation.
func Load(path string) (*Store, error) {
	st := New(path)
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- fixed editor config location or explicit override
	if err != nil {
		return st, fmt.Errorf("read store: %w", err)
	}
	top, err := decodeObject(data)
	if err != nil {
		return New(path), fmt.Errorf("parse store: %w", err)
	}

	names := make([]string, 0)
	specs := make(map[string]ServerSpec)
	if raw, ok := top.vals[serversKey]; ok {
		servers, err := decodeObject(raw)
		if err != nil {
			return New(path), fmt.Errorf("parse %s: %w", serversKey, err)
		}
		for _, name := range servers.keys {
			var spec ServerSpec
			if err := json.Unmarshal(servers.vals[name], &spec); err != nil {
				return New(path), fmt.Errorf("parse server %q: %w", name, err)
			}
			names = append(names, name)
			specs[name] = spec
		}
	}

	st.names = names
	st.specs = specs
	st.topKeys = top.keys
	if _, ok := top.vals[serversKey]; !ok {
		st.topKeys = append(st.topKeys, serversKey)
	}
	for _, k := range top.keys {
		if k != serversKey {
			st.extra[k] = top.vals[k]
		}
	}
	return st, nil
}

// Path returns the file the store was loaded from and saves to.
func (s *Store) Path() string { return s.path }

// Len returns the number of configured servers.
func (s *Store) Len() int { return len(s.names) }

// Names returns server names in file order.
func (s *Store) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Get returns the spec for name.
func (s *Store) Get(name string) (ServerSpec, bool) {
	spec, ok := s.specs[name]
	return spec, ok
}

// Set adds or replaces the spec for name. New names append to the order.
func (s *Store) Set(name string, spec ServerSpec) {
	if _, ok := s.specs[name]; !ok {
		s.names = append(s.names, name)
	}
	s.specs[name] = spec
}

// Remove deletes the entry for name, reporting whether it existed.
func (s *Store) Remove(name string) bool {
	if _, ok := s.specs[name]; !ok {
		return false
	}
	delete(s.specs, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
	return true
}

// Save writes the whole file back, keeping entry order and any unrelated
// top-level keys the editor stored alongside mcpServers.
func (s *Store) Save() error {
	data, err := s.encode()
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}

func (s *Store) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, key := range s.topKeys {
		if i > 0 {
			buf.WriteString(",\n")
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.WriteString("  ")
		buf.Write(kb)
		buf.WriteString(": ")
		if key == serversKey {
			sb, err := s.encodeServers()
			if err != nil {
				return nil, err
			}
			buf.Write(sb)
			continue
		}
		var vb bytes.Buffer
		if err := json.Indent(&vb, s.extra[key], "  ", "  "); err != nil {
			return nil, err
		}
		buf.Write(vb.Bytes())
	}
	buf.WriteString("\n}\n")
	return buf.Bytes(), nil
}

func (s *Store) encodeServers() ([]byte, error) {
	if len(s.names) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, name := range s.names {
		if i > 0 {
			buf.WriteString(",\n")
		}
		nb, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		sb, err := json.MarshalIndent(s.specs[name], "    ", "  ")
		if err != nil {
			return nil, err
		}
		buf.WriteString("    ")
		buf.Write(nb)
		buf.WriteString(": ")
		buf.Write(sb)
	}
	buf.WriteString("\n  }")
	return buf.Bytes(), nil
}

// rawObject captures a JSON object's values together with its key order,
// which encoding/json maps discard.
type rawObject struct {
	keys []string
	vals map[string]json.RawMessage
}

func decodeObject(data []byte) (*rawObject, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	obj := &rawObject{vals: make(map[string]json.RawMessage)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if _, dup := obj.vals[key]; !dup {
			obj.keys = append(obj.keys, key)
		}
		obj.vals[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}
