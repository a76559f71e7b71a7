package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Ask the running server to re-walk its configured roots, skipping unchanged files",
		RunE: func(c *cobra.Command, args []string) error {
			return runReindex(c)
		},
	}
}

func runReindex(c *cobra.Command) error {
	cfg := loadCLIConfig()
	client := newClient(cfg)

	resp, err := client.Reindex(c.Context())
	if err != nil {
		printErr(err)
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "reindexed %d document(s), %d chunk(s) in %.2fs\n",
		resp.ProcessedDocuments, resp.TotalChunks, resp.DurationSeconds)
	return nil
}
