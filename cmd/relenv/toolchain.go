package main

import (
	"github.com/spf13/cobra"

	"github.com/twangboy/relative-environment-for-python/internal/toolchain"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

var (
	toolchainArch    string
	toolchainVersion string
)

var toolchainCmd = &cobra.Command{
	Use:   "toolchain",
	Short: "Fetch the prebuilt cross-compiler toolchain",
	Long:  "Download and unpack the pinned gcc toolchain linux builds compile against.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(toolchainArch, "linux")
		if err != nil {
			return err
		}
		ctx := cmdContext(cmd)
		return toolchain.Fetch(ctx, workdir.New(cfg.Root), cfg.Arch, toolchainVersion)
	},
}

func registerToolchainCommand(root *cobra.Command) {
	root.AddCommand(toolchainCmd)

	toolchainCmd.Flags().StringVar(&toolchainArch, "arch", "", "Toolchain architecture (default native)")
	toolchainCmd.Flags().StringVar(&toolchainVersion, "version", "latest", "Release version to fetch")
}
