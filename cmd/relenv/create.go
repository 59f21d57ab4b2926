package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twangboy/relative-environment-for-python/internal/create"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

var (
	createArch     string
	createPlatform string
	createDest     string
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new environment from an archived build",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(createArch, createPlatform)
		if err != nil {
			return err
		}
		ctx := cmdContext(cmd)

		triplet, err := workdir.Triplet(cfg.Arch, cfg.Platform)
		if err != nil {
			return err
		}
		destRoot := createDest
		if destRoot == "" {
			if destRoot, err = os.Getwd(); err != nil {
				return err
			}
		}

		dest, err := create.Create(ctx, args[0], destRoot, workdir.New(cfg.Root), triplet)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dest)
		return nil
	},
}

func registerCreateCommand(root *cobra.Command) {
	root.AddCommand(createCmd)

	createCmd.Flags().StringVar(&createArch, "arch", "", "Architecture of the archived build (default native)")
	createCmd.Flags().StringVar(&createPlatform, "platform", "", "Platform of the archived build (default native)")
	createCmd.Flags().StringVar(&createDest, "dest", "", "Parent directory for the new environment (default current directory)")
}
