package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/twangboy/relative-environment-for-python/internal/app"
)

var (
	buildArch        string
	buildPlatform    string
	buildSteps       []string
	buildRecipes     string
	buildClean       bool
	buildNoDownload  bool
	buildNoCleanup   bool
	buildGlobs       []string
	buildConcurrency int
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a Python environment from source",
	Long: "Download, compile, and install every build step for the target triplet, " +
		"then package the result as a relocatable archive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.NewConfig(app.Config{
			Root:                rootDir,
			Arch:                buildArch,
			Platform:            buildPlatform,
			Steps:               buildSteps,
			RecipesPath:         buildRecipes,
			Clean:               buildClean,
			NoDownload:          buildNoDownload,
			Cleanup:             !buildNoCleanup,
			CI:                  ciMode,
			LogLevel:            logLevel,
			LogFormat:           logFormat,
			ArchiveGlobs:        buildGlobs,
			DownloadConcurrency: buildConcurrency,
		})
		if err != nil {
			return err
		}
		// Logs go to stderr; the live status line owns stdout.
		a, err := app.New(os.Stderr, cfg)
		if err != nil {
			return err
		}
		return a.Run(cmd.Context())
	},
}

func registerBuildCommand(root *cobra.Command) {
	root.AddCommand(buildCmd)

	buildCmd.Flags().StringVar(&buildArch, "arch", "", "Target architecture (default native)")
	buildCmd.Flags().StringVar(&buildPlatform, "platform", "", "Target platform (default native)")
	buildCmd.Flags().StringSliceVar(&buildSteps, "step", nil, "Build only the named steps (repeatable)")
	buildCmd.Flags().StringVar(&buildRecipes, "recipes", "", "Directory of .hcl step manifests")
	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "Remove remnants of previous builds first")
	buildCmd.Flags().BoolVar(&buildNoDownload, "no-download", false, "Skip source downloads, use what is on disk")
	buildCmd.Flags().BoolVar(&buildNoCleanup, "no-cleanup", false, "Keep the install prefix after packaging")
	buildCmd.Flags().StringSliceVar(&buildGlobs, "archive-glob", nil, "Glob selecting files for the final archive (repeatable)")
	buildCmd.Flags().IntVar(&buildConcurrency, "download-concurrency", 0, "Maximum parallel downloads")
}
