package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
	"github.com/twangboy/relative-environment-for-python/internal/download"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

// buildURLTemplate locates the prebuilt environment archives published per
// release, keyed by triplet.
const buildURLTemplate = "https://woz.io/relenv/{version}/build/%s.tar.xz"

var (
	fetchArch     string
	fetchPlatform string
	fetchVersion  string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch a prebuilt environment archive",
	Long:  "Download a prebuilt build archive for the target triplet instead of building from source.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(fetchArch, fetchPlatform)
		if err != nil {
			return err
		}
		ctx := cmdContext(cmd)

		triplet, err := workdir.Triplet(cfg.Arch, cfg.Platform)
		if err != nil {
			return err
		}
		dirs := workdir.New(cfg.Root)

		d := &download.Download{
			Name:        triplet,
			URLTemplate: fmt.Sprintf(buildURLTemplate, triplet),
			Version:     fetchVersion,
			Destination: dirs.Build,
		}
		if _, err := d.Fetch(ctx); err != nil {
			return fmt.Errorf("fetching prebuilt build for %s: %w", triplet, err)
		}
		ctxlog.FromContext(ctx).Info("Prebuilt build ready.", "archive", dirs.ArchivePath(triplet))
		return nil
	},
}

func registerFetchCommand(root *cobra.Command) {
	root.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchArch, "arch", "", "Target architecture (default native)")
	fetchCmd.Flags().StringVar(&fetchPlatform, "platform", "", "Target platform (default native)")
	fetchCmd.Flags().StringVar(&fetchVersion, "version", "latest", "Release version to fetch")
}
