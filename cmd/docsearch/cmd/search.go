package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/docsearch/docsearch/internal/contracts"
	"github.com/docsearch/docsearch/internal/core"
)

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documentation corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			// An explicit --limit 0 must fail validation; a wire-level
			// SearchRequest.Limit of 0 is indistinguishable from
			// "omitted" (the field is `omitempty`), so this is the one place
			// that still knows whether the caller actually typed it.
			if c.Flags().Changed("limit") && limit == 0 {
				err := core.Validation("limit", "limit must be greater than 0")
				printErr(err)
				return err
			}
			query := strings.Join(args, " ")
			return runSearch(c, query, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	return cmd
}

func runSearch(c *cobra.Command, query string, limit int) error {
	cfg := loadCLIConfig()
	client := newClient(cfg)

	resp, err := client.Search(c.Context(), contracts.SearchRequest{
		Query:           query,
		Limit:           limit,
		Collection:      effectiveCollection(cfg),
		IncludeSnippets: true,
	})
	if err != nil {
		printErr(err)
		return err
	}

	switch flagFormat {
	case "json":
		enc := json.NewEncoder(c.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "simple":
		for _, r := range resp.Results {
			fmt.Fprintf(c.OutOrStdout(), "%.3f\t%s\t%s\n", r.Score, r.DocumentTitle, r.Snippet)
		}
		return nil
	default:
		w := tabwriter.NewWriter(c.OutOrStdout(), 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "SCORE\tDOCUMENT\tBREADCRUMB\tCHUNK")
		for _, r := range resp.Results {
			fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", r.Score, r.DocumentTitle, strings.Join(r.Breadcrumb, " > "), r.ChunkID)
		}
		fmt.Fprintf(w, "\n%d result(s) in %dms\n", resp.TotalResults, resp.SearchMetadata.TotalTimeMS)
		return w.Flush()
	}
}
