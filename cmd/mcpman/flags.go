package main

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	SettingsPath string // Path to the settings TOML (optional)
	ConfigPath   string // Path to Cursor's mcp.json (optional override)
	LogLevel     string // Log level override
}

// InstallFlags holds flags for the install command.
type InstallFlags struct {
	Vars []string // Repeated KEY=VALUE pairs for placeholder/env values
}

// InstallGitFlags holds flags for the install-git command.
type InstallGitFlags struct {
	Name     string
	Command  string
	MainFile string
	Subdir   string
	Steps    []string
}

// UninstallFlags holds flags for the uninstall command.
type UninstallFlags struct {
	Yes bool
}
