package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/twangboy/relative-environment-for-python/internal/builder"
	"github.com/twangboy/relative-environment-for-python/internal/download"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var runErr *builder.RunError
		var dlErr *download.Error
		switch {
		case errors.As(err, &runErr):
			for _, name := range runErr.Failed {
				fmt.Fprintf(os.Stderr, "failed: %s\n", name)
			}
			for _, name := range runErr.Cancelled {
				fmt.Fprintf(os.Stderr, "cancelled: %s\n", name)
			}
		case errors.As(err, &dlErr):
			for _, name := range dlErr.Failed {
				fmt.Fprintf(os.Stderr, "download failed: %s\n", name)
			}
		}
		os.Exit(1)
	}
}
