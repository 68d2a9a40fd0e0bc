//go:build windows

package install

// shellCommand wraps a free-form install step for the platform shell so
// pipes, &&-chains and quoting behave the way the catalog author expects.
func shellCommand(step string) (string, []string) {
	return "cmd", []string{"/c", step}
}
