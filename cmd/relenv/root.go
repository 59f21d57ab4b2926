package main

import "github.com/spf13/cobra"

var (
	rootDir   string
	logLevel  string
	logFormat string
	ciMode    bool
)

var rootCmd = &cobra.Command{
	Use:   "relenv",
	Short: "Build and manage relocatable Python environments",
	Long: "relenv builds Python runtimes from source against a pinned toolchain, " +
		"packages them as relocatable archives, and unpacks them into standalone environments.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Data directory for downloads, sources, logs, and builds (default $RELENV_DATA or ~/.local/relenv)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text/json)")
	rootCmd.PersistentFlags().BoolVar(&ciMode, "ci", false, "Disable the live status line, emit logs only")

	registerBuildCommand(rootCmd)
	registerFetchCommand(rootCmd)
	registerCreateCommand(rootCmd)
	registerToolchainCommand(rootCmd)
}
