// Package cmd implements the docsearch CLI: search, index, status,
// reindex, server, collection, doc, config. Every read/write subcommand
// but `server`, `index`, and `config` talks to a running server over
// internal/cliclient.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docsearch/docsearch/internal/cliclient"
	"github.com/docsearch/docsearch/internal/config"
	"github.com/docsearch/docsearch/internal/core"
	"github.com/docsearch/docsearch/pkg/version"
)

// CLI exit codes.
const (
	ExitOK                    = 0
	ExitValidation            = 2
	ExitNotFound              = 3
	ExitDependencyUnavailable = 4
	ExitInternal              = 5
)

var (
	flagServerURL  string
	flagCollection string
	flagFormat     string
	flagConfigDir  string
)

// NewRootCmd builds the docsearch root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "docsearch",
		Short:   "Local-first semantic search over a documentation corpus",
		Version: version.Short(),
	}
	root.SetVersionTemplate("docsearch version {{.Version}}\n")

	root.PersistentFlags().StringVar(&flagServerURL, "server", "", "docsearch server URL (default from config, e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVar(&flagCollection, "collection", "", "collection name (default from config)")
	root.PersistentFlags().StringVar(&flagFormat, "format", "table", "output format: table, json, simple")
	root.PersistentFlags().StringVar(&flagConfigDir, "config-dir", ".", "directory to load docsearch configuration from")

	root.AddCommand(newServerCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newIndexCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newReindexCmd())
	root.AddCommand(newCollectionCmd())
	root.AddCommand(newDocCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// Execute runs the CLI, returning the first error encountered (exit-code
// mapping happens in main via ExitCodeFor).
func Execute() error {
	return NewRootCmd().Execute()
}

// loadCLIConfig loads the on-disk configuration that supplies CLI defaults
// (server URL, collection name).
func loadCLIConfig() *config.Config {
	cfg, err := config.Load(flagConfigDir)
	if err != nil {
		return config.NewConfig()
	}
	return cfg
}

// newClient builds an internal/cliclient.Client against the effective
// server URL: --server flag, else the loaded config's listen_addr.
func newClient(cfg *config.Config) *cliclient.Client {
	base := flagServerURL
	if base == "" {
		base = "http://" + cfg.Server.ListenAddr
	}
	return cliclient.New(base)
}

// effectiveCollection resolves --collection against the loaded config's
// default collection name.
func effectiveCollection(cfg *config.Config) string {
	if flagCollection != "" {
		return flagCollection
	}
	return cfg.Search.CollectionName
}

// ExitCodeFor maps an error to its CLI exit code. It
// recognizes both *cliclient.Error (server round-trip failures) and
// *core.Error (failures from commands, like `index`, that run in-process
// against the container directly).
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var category string
	if ce, ok := err.(*cliclient.Error); ok {
		category = ce.Category()
	} else if ce, ok := core.AsError(err); ok {
		category = string(ce.Kind)
	}

	switch core.Kind(category) {
	case core.KindValidation:
		return ExitValidation
	case core.KindNotFound:
		return ExitNotFound
	case core.KindDependencyUnavailable, core.KindRateLimited:
		return ExitDependencyUnavailable
	case "":
		return ExitInternal
	default:
		return ExitInternal
	}
}

// printErr writes a single-line human message to stderr.
func printErr(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
}
