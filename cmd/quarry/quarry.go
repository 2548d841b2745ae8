// Package quarrycmder
package quarrycmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/quarryhq/quarry/cmd/quarry/config"
	ingestcmder "github.com/quarryhq/quarry/cmd/quarry/ingest"
	initcmder "github.com/quarryhq/quarry/cmd/quarry/init"
	querycmder "github.com/quarryhq/quarry/cmd/quarry/query"
	servecmder "github.com/quarryhq/quarry/cmd/quarry/serve"
	statuscmder "github.com/quarryhq/quarry/cmd/quarry/status"
	watchcmder "github.com/quarryhq/quarry/cmd/quarry/watch"
	versioncmder "github.com/quarryhq/quarry/cmd/version"
)

const quarryLongDesc string = `Quarry is a document ingestion and retrieval service.

Ingest documents into a vector store and query them with semantic or
agentic retrieval:
  quarry serve         Run the API server
  quarry ingest        Upload documents through a running server
  quarry query         Query documents through a running server
  quarry watch         Ingest files as they appear in a directory`

const quarryShortDesc string = "Quarry - Document Retrieval"

func NewQuarryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarry",
		Short: quarryShortDesc,
		Long:  quarryLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .quarry/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(querycmder.NewQueryCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
