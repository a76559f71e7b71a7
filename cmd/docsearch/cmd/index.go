package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docsearch/docsearch/internal/app"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index [path]",
		Short: "Bulk-index a documentation root without starting the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(c, path)
		},
	}
}

func runIndex(c *cobra.Command, path string) error {
	cfg := loadCLIConfig()
	logger := slog.New(slog.NewTextHandler(c.ErrOrStderr(), nil))

	container, err := app.Build(c.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer container.Close()

	processed, err := container.Indexing.IndexPath(c.Context(), path)
	if err != nil {
		printErr(err)
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "indexed %d document(s)\n", processed)
	return nil
}
