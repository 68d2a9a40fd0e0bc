package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// buildRoot assembles the root command and all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	installFlags := &InstallFlags{}
	installGitFlags := &InstallGitFlags{}
	uninstallFlags := &UninstallFlags{}

	mcpCommand := command{g: globalFlags}

	root := createRootCommand(globalFlags)

	root.AddCommand(
		createListCommand(mcpCommand),
		createStartCommand(mcpCommand),
		createStopCommand(mcpCommand),
		createRestartCommand(mcpCommand),
		createStartAllCommand(mcpCommand),
		createStopAllCommand(mcpCommand),
		createFunctionsCommand(mcpCommand),
		createAvailableCommand(mcpCommand),
		createInstallCommand(mcpCommand, installFlags),
		createInstallGitCommand(mcpCommand, installGitFlags),
		createUninstallCommand(mcpCommand, uninstallFlags),
		createUpdateCommand(mcpCommand),
	)

	return root
}

// createRootCommand creates the root command with the persistent flags.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "mcpman",
		Short: "Manage MCP servers configured for the Cursor editor",
		Long: `mcpman lists, starts, stops and installs the MCP servers declared in
Cursor's mcp.json. Servers run as detached processes that outlive this
command; terminating one is guarded by safety checks so an unrelated
process is never killed by mistake.

Examples:
  mcpman list
  mcpman start filesystem
  mcpman install weather --var api_key=XYZ
  mcpman functions filesystem`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.SettingsPath, "settings", "", "path to settings TOML (optional)")
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to Cursor's mcp.json (default ~/.cursor/mcp.json)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")

	return root
}

// createListCommand creates the list subcommand
func createListCommand(mcpCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured servers and whether they are running",
		Long: `List every server from mcp.json with its detected process, ports and
uptime.

Examples:
  mcpman list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.List()
		},
	}
}

// createStartCommand creates the start subcommand
func createStartCommand(mcpCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "start <name>",
		Short: "Start a configured server",
		Long: `Start the named server as a detached process. Starting a server that is
already running is reported and changes nothing.

Examples:
  mcpman start filesystem`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.Start(args[0])
		},
	}
}

// createStopCommand creates the stop subcommand
func createStopCommand(mcpCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a running server",
		Long: `Stop the named server and its child processes, graceful first and
forced after the grace period. The stop is refused when the detected
process does not safely match the server's configuration.

Examples:
  mcpman stop filesystem`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.Stop(args[0])
		},
	}
}

// createRestartCommand creates the restart subcommand
func createRestartCommand(mcpCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Restart a server",
		Long: `Stop the named server if it is running, wait for it to settle, then
start it again. A refused stop aborts the restart.

Examples:
  mcpman restart filesystem`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.Restart(args[0])
		},
	}
}

// createStartAllCommand creates the start-all subcommand
func createStartAllCommand(mcpCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "start-all",
		Short: "Start every configured server",
		Long: `Start every server from mcp.json that is not already running, pacing
the launches so the machine is not swamped. Failures are reported per
server and do not stop the rest.

Examples:
  mcpman start-all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.StartAll()
		},
	}
}

// createStopAllCommand creates the stop-all subcommand
func createStopAllCommand(mcpCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every running server",
		Long: `Stop every configured server that is currently running. Refusals and
failures are reported per server and do not stop the rest.

Examples:
  mcpman stop-all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.StopAll()
		},
	}
}

// createFunctionsCommand creates the functions subcommand
func createFunctionsCommand(mcpCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "functions <name>",
		Short: "List the functions a server exposes",
		Long: `Show the functions of the named server. The server is started first if
it is not running. Listings come from the registry entry when it has
one, and from built-in knowledge of well-known packages otherwise.

Examples:
  mcpman functions filesystem`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.Functions(cmd.Context(), args[0])
		},
	}
}

// createAvailableCommand creates the available subcommand
func createAvailableCommand(mcpCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "available",
		Short: "List servers available in the registry",
		Long: `Show the registry catalog with already-installed servers marked. The
catalog is cached locally; use 'mcpman update' to force a refresh.

Examples:
  mcpman available`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.Available(cmd.Context())
		},
	}
}

// createInstallCommand creates the install subcommand
func createInstallCommand(mcpCommand command, installFlags *InstallFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <name>",
		Short: "Install a server from the registry",
		Long: `Install the named server from the registry. Placeholder arguments and
environment variables are taken from --var pairs, or prompted for on a
terminal. npm servers are recorded for npx to fetch on first launch;
git servers are cloned and built; smithery servers run the smithery
installer once.

Examples:
  mcpman install weather
  mcpman install weather --var api_key=XYZ --var UNITS=metric`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.Install(cmd.Context(), args[0], installFlags)
		},
	}

	cmd.Flags().StringArrayVar(&installFlags.Vars, "var", nil, "KEY=VALUE for a placeholder or environment variable (repeatable)")

	return cmd
}

// createInstallGitCommand creates the install-git subcommand
func createInstallGitCommand(mcpCommand command, installGitFlags *InstallGitFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install-git <url>",
		Short: "Install a server from a git repository",
		Long: `Clone a repository into ~/.cursor/mcp_servers, run its install steps
and record the server in mcp.json. An existing checkout is updated
with git pull instead of cloned again.

Examples:
  mcpman install-git https://github.com/example/weather-mcp.git
  mcpman install-git https://github.com/example/mono.git --name weather \
      --subdir servers/weather --install-step "npm install" --install-step "npm run build"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.InstallGit(cmd.Context(), args[0], installGitFlags)
		},
	}

	cmd.Flags().StringVarP(&installGitFlags.Name, "name", "n", "", "server name (default: repository basename)")
	cmd.Flags().StringVarP(&installGitFlags.Command, "command", "c", "node", "command that runs the server")
	cmd.Flags().StringVarP(&installGitFlags.MainFile, "main-file", "m", "index.js", "entry file to look for in the checkout")
	cmd.Flags().StringVarP(&installGitFlags.Subdir, "subdir", "s", "", "subdirectory holding the server")
	cmd.Flags().StringArrayVarP(&installGitFlags.Steps, "install-step", "i", nil, "install step to run in the checkout (repeatable, default \"npm install\")")

	return cmd
}

// createUninstallCommand creates the uninstall subcommand
func createUninstallCommand(mcpCommand command, uninstallFlags *UninstallFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall <name>",
		Short: "Uninstall a server",
		Long: `Remove the named server: stop it if running, undo what its install put
on disk (git checkout, global npm package) and delete its mcp.json
entry. Asks for confirmation unless --yes is given.

Examples:
  mcpman uninstall weather
  mcpman uninstall weather --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.Uninstall(cmd.Context(), args[0], uninstallFlags)
		},
	}

	cmd.Flags().BoolVarP(&uninstallFlags.Yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// createUpdateCommand creates the update subcommand
func createUpdateCommand(mcpCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Refresh the registry cache",
		Long: `Fetch the registry catalog and replace the local cache regardless of
its age.

Examples:
  mcpman update`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpCommand.Update(cmd.Context())
		},
	}
}
