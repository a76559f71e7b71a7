package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running server's status",
		RunE: func(c *cobra.Command, args []string) error {
			return runStatus(c)
		},
	}
}

func runStatus(c *cobra.Command) error {
	cfg := loadCLIConfig()
	client := newClient(cfg)

	resp, err := client.Status(c.Context())
	if err != nil {
		printErr(err)
		return err
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(c.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out := c.OutOrStdout()
	fmt.Fprintf(out, "status: %s\n", resp.Status)
	fmt.Fprintf(out, "collection: %s (%d docs, %d chunks, dim=%d)\n",
		resp.Collection.Name, resp.Collection.Documents, resp.Collection.Chunks, resp.Collection.VectorDimensions)
	fmt.Fprintf(out, "embedding model: %s\n", resp.Configuration.EmbeddingModel)
	fmt.Fprintf(out, "vector backend: %s\n", resp.Configuration.VectorDatabase)
	fmt.Fprintf(out, "uptime: %.0fs, searches: %d, avg: %.1fms\n",
		resp.Performance.UptimeSeconds, resp.Performance.TotalSearches, resp.Performance.AvgSearchTimeMS)
	return nil
}
