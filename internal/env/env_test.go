package env

import (
	"os"
	"strings"
	"testing"
)

func lookup(out []string, key string) (string, bool) {
	for _, kv := range out {
		if strings.HasPrefix(kv, key+"=") {
			return strings.TrimPrefix(kv, key+"="), true
		}
	}
	return "", false
}

func TestMergeOverlaysSpecEnv(t *testing.T) {
	t.Setenv("MCPMAN_TEST_BASE", "from-os")
	t.Setenv("MCPMAN_TEST_OVERRIDE", "os-value")

	e := New()
	out := e.Merge(map[string]string{
		"MCPMAN_TEST_OVERRIDE": "spec-value",
		"MCPMAN_TEST_EXTRA":    "extra",
	})

	if v, ok := lookup(out, "MCPMAN_TEST_BASE"); !ok || v != "from-os" {
		t.Fatalf("base var lost: %q %v", v, ok)
	}
	if v, _ := lookup(out, "MCPMAN_TEST_OVERRIDE"); v != "spec-value" {
		t.Fatalf("spec env must win over OS env, got %q", v)
	}
	if v, _ := lookup(out, "MCPMAN_TEST_EXTRA"); v != "extra" {
		t.Fatalf("extra var missing, got %q", v)
	}
}

func TestMergeExpandsPlaceholders(t *testing.T) {
	t.Setenv("MCPMAN_TEST_HOME", "/home/u")

	e := New()
	out := e.Merge(map[string]string{"DATA_DIR": "${MCPMAN_TEST_HOME}/data"})

	if v, _ := lookup(out, "DATA_DIR"); v != "/home/u/data" {
		t.Fatalf("expansion failed: %q", v)
	}
}

func TestMergeNilAndEmptyKeys(t *testing.T) {
	e := New()
	out := e.Merge(nil)
	if len(out) == 0 {
		t.Fatal("expected OS environment to pass through")
	}
	out = e.Merge(map[string]string{"": "dropped"})
	if _, ok := lookup(out, ""); ok {
		t.Fatal("empty key must be skipped")
	}
}

// FuzzMerge fuzzes Merge with random per-server values to ensure no panics
// and basic invariants around ${VAR} expansion.
func FuzzMerge(f *testing.F) {
	f.Add("A", "1", "B", "${A}-x")
	f.Add("FOO", "bar", "FOO", "${FOO}")
	f.Add("X", "$Y", "Y", "${X}") // cyclic-like

	f.Fuzz(func(t *testing.T, k1, v1, k2, v2 string) {
		e := New()
		out := e.Merge(map[string]string{k1: v1, k2: v2})
		for _, kv := range out {
			if !strings.Contains(kv, "=") {
				t.Fatalf("bad pair: %q", kv)
			}
			if strings.HasPrefix(kv, "=") {
				t.Fatalf("empty key: %q", kv)
			}
		}
		// Expansion must not invent placeholders when inputs carry no '$'.
		if !strings.ContainsRune(v1, '$') && !strings.ContainsRune(v2, '$') {
			for _, kv := range out {
				key := kv[:strings.IndexByte(kv, '=')]
				if key != k1 && key != k2 {
					continue
				}
				if strings.Contains(kv, "${") && !osEnvHasDollar() {
					t.Fatalf("unexpected placeholder remains: %q", kv)
				}
			}
		}
	})
}

func osEnvHasDollar() bool {
	for _, kv := range os.Environ() {
		if strings.Contains(kv, "$") {
			return true
		}
	}
	return false
}
