package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newDocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Inspect or remove individual documents",
	}
	cmd.AddCommand(newDocShowCmd())
	cmd.AddCommand(newDocPurgeCmd())
	return cmd
}

func newDocShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a document's metadata and ordered chunk list",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg := loadCLIConfig()
			client := newClient(cfg)
			resp, err := client.GetDocument(c.Context(), args[0])
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

func newDocPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <id>",
		Short: "Tombstone a document and all of its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg := loadCLIConfig()
			client := newClient(cfg)
			resp, err := client.PurgeDocument(c.Context(), args[0])
			if err != nil {
				printErr(err)
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), resp.Message)
			return nil
		},
	}
}
