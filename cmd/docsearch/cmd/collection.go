package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage logical collections",
	}
	cmd.AddCommand(newCollectionListCmd())
	cmd.AddCommand(newCollectionShowCmd())
	cmd.AddCommand(newCollectionCreateCmd())
	return cmd
}

func newCollectionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every collection the server holds",
		RunE: func(c *cobra.Command, args []string) error {
			cfg := loadCLIConfig()
			client := newClient(cfg)
			resp, err := client.ListCollections(c.Context())
			if err != nil {
				printErr(err)
				return err
			}
			if flagFormat == "json" {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			w := tabwriter.NewWriter(c.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDIMENSION\tDOCUMENTS\tCHUNKS\tCREATED")
			for _, col := range resp.Collections {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", col.Name, col.Dimension, col.Documents, col.Chunks, col.CreatedAt)
			}
			return w.Flush()
		},
	}
}

func newCollectionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one collection's catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg := loadCLIConfig()
			client := newClient(cfg)
			resp, err := client.GetCollection(c.Context(), args[0])
			if err != nil {
				printErr(err)
				return err
			}
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
}

func newCollectionCreateCmd() *cobra.Command {
	var dim int
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg := loadCLIConfig()
			client := newClient(cfg)
			resp, err := client.CreateCollection(c.Context(), args[0], dim)
			if err != nil {
				printErr(err)
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "created collection %q (dimension=%d)\n", resp.Name, resp.Dimension)
			return nil
		},
	}
	cmd.Flags().IntVar(&dim, "dim", 0, "vector dimension (defaults to the server's embedder dimension)")
	return cmd
}
