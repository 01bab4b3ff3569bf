// Package cmd provides CLI commands for the nodeedge binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags across eval and repl.
var (
	// ConfigFlag points at an optional nodeedge.yaml config file.
	ConfigFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to YAML config file (defaults for installer, env cache, trace)",
	}

	// InstallerFlag overrides the package manager binary.
	InstallerFlag = &cli.StringFlag{
		Name:  "installer",
		Usage: "Package manager binary used to provision the env directory",
	}

	// DebugFlag inherits the child process's stdio; the log level is not
	// changed.
	DebugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Inherit child stdio",
	}

	// TUIFlag enables the Bubble Tea live engine-state view.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Show a live view of the engine's metrics counters",
	}
)

// EngineFlags returns the flags shared by commands that start an engine.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		InstallerFlag,
		DebugFlag,
		TUIFlag,
	}
}
