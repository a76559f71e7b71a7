// Command docsearch is the CLI front-end and server entry point for the
// local-first semantic document search engine. It hosts both the "server"
// subcommand (REST + JSON-RPC transports over a shared app.Container) and
// the client-side subcommands (search, index, status, reindex, collection,
// doc) that talk to a running server over the same wire contracts.
package main

import (
	"os"

	"github.com/docsearch/docsearch/cmd/docsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCodeFor(err))
	}
}
