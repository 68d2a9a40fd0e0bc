package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env composes the environment handed to spawned servers: the inherited OS
// environment overlaid with per-server variables from the configuration
// store entry.
type Env struct {
	base Var // cached base from OS environment
}

func New() *Env {
	return &Env{}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			v := kv[i+1:]
			if k == "" {
				continue
			}
			base[k] = v
		}
	}
	e.base = base
}

// Merge composes the final environment list:
// base = OS env (cached on first use), then perServer overrides applied on
// top. ${VAR} references are expanded against the composed map (simple
// expansion, no recursion). The result is sorted for deterministic spawns.
func (e *Env) Merge(perServer map[string]string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(perServer))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range perServer {
		if k == "" {
			continue
		}
		m[k] = v
	}
	expanded := make(Var, len(m))
	for k, v := range m {
		expanded[k] = expand(v, m)
	}
	out := make([]string, 0, len(expanded))
	for k, v := range expanded {
		if k == "" {
			continue
		}
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func expand(s string, m Var) string {
	res := s
	// simple ${VAR} expansion; iterate over keys present
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
