// Package servecmder provides the serve command that runs the quarry API
// server with its full ingestion and query stack.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/api"
	"github.com/quarryhq/quarry/pkg/agent"
	"github.com/quarryhq/quarry/pkg/chunker"
	"github.com/quarryhq/quarry/pkg/config"
	"github.com/quarryhq/quarry/pkg/dotdir"
	embeddingutils "github.com/quarryhq/quarry/pkg/embeddings/utils"
	"github.com/quarryhq/quarry/pkg/eventstream"
	eskafka "github.com/quarryhq/quarry/pkg/eventstream/kafka"
	"github.com/quarryhq/quarry/pkg/eventstream/nop"
	"github.com/quarryhq/quarry/pkg/ingest"
	"github.com/quarryhq/quarry/pkg/logger"
	"github.com/quarryhq/quarry/pkg/query"
	vectorutils "github.com/quarryhq/quarry/pkg/vector/utils"
)

// serveFlags maps flag registry keys to their definitions for this command.
var serveFlags = config.FlagSet{
	config.FlagAPIListen: {
		Name: "listen", Shorthand: "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagSQLite: {
		Name: "sqlite", Shorthand: "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the SQLite database (default: <.quarry dir>/quarry.db)",
	},
	config.FlagVectorStoreProv: {
		Name:        "vector-store-provider",
		ViperKey:    "vector_store.provider",
		Description: "Vector store backend (memory, sqlite, qdrant)",
	},
	config.FlagVectorStoreTgt: {
		Name:        "vector-store-target",
		ViperKey:    "vector_store.target",
		Description: "Vector store target (host:port for qdrant)",
	},
	config.FlagCollection: {
		Name: "collection", Shorthand: "c",
		ViperKey:    "vector_store.collection",
		Description: "Default collection name",
	},
	config.FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider (ollama, openai, azure, huggingface)",
	},
	config.FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Embedding provider base URL",
	},
	config.FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	config.FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding vector dimensions",
	},
	config.FlagChunkSize: {
		Name:        "chunk-size",
		ViperKey:    "chunking.size",
		Description: "Chunk size in characters",
	},
	config.FlagChunkOverlap: {
		Name:        "chunk-overlap",
		ViperKey:    "chunking.overlap",
		Description: "Chunk overlap in characters",
	},
	config.FlagMaxSteps: {
		Name:        "max-steps",
		ViperKey:    "agent.max_steps",
		Description: "Maximum tool steps for agentic queries",
	},
}

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagSQLite,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagCollection,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagChunkSize,
	config.FlagChunkOverlap,
	config.FlagMaxSteps,
}

type ServeCommander struct {
	v      *viper.Viper
	debug  bool
	logger *zap.Logger

	listen          string
	sqlitePath      string
	vectorProvider  string
	vectorTarget    string
	collection      string
	embedProvider   string
	embedTarget     string
	embedModel      string
	embedDimensions uint
	chunkSize       uint
	chunkOverlap    uint
	maxSteps        uint
}

const serveLongDesc string = `Run the quarry API server.

The server exposes document upload, deletion, inventory, and query
endpoints over HTTP. All settings follow the usual precedence:
flags > environment (QUARRY_*) > config.toml > defaults.`

const serveShortDesc string = "Run the quarry API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			cmder.v = v

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagCollection, &cmder.collection)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingProv, &cmder.embedProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingTgt, &cmder.embedTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddUintFlag(cmd, serveFlags, config.FlagEmbeddingDims, &cmder.embedDimensions)
	config.AddUintFlag(cmd, serveFlags, config.FlagChunkSize, &cmder.chunkSize)
	config.AddUintFlag(cmd, serveFlags, config.FlagChunkOverlap, &cmder.chunkOverlap)
	config.AddUintFlag(cmd, serveFlags, config.FlagMaxSteps, &cmder.maxSteps)

	return cmd
}

func (c *ServeCommander) run(cmd *cobra.Command) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	v := c.v

	sqlitePath := v.GetString("storage.sqlite_path")
	if sqlitePath == "" && v.GetString("vector_store.provider") != "memory" {
		configDir, _ := cmd.Flags().GetString("config-dir")
		target, err := dotdir.NewManager().Target(configDir)
		if err != nil {
			return fmt.Errorf("resolving data directory: %w", err)
		}
		sqlitePath = filepath.Join(target, "quarry.db")
	}

	storeTarget := v.GetString("vector_store.target")
	if v.GetString("vector_store.provider") == "sqlite" || v.GetString("vector_store.provider") == "sqlitevec" {
		storeTarget = sqlitePath
	}

	store, err := vectorutils.NewStore(&vectorutils.NewStoreOpts{
		ProviderType: v.GetString("vector_store.provider"),
		Target:       storeTarget,
		APIKey:       v.GetString("vector_store.api_key"),
		UseTLS:       v.GetBool("vector_store.use_tls"),
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	defer store.Close()

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
		APIKey:       v.GetString("embedding.api_key"),
		Dimensions:   v.GetInt("embedding.dimensions"),
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer embedder.Close()

	ck, err := chunker.New(v.GetInt("chunking.size"), v.GetInt("chunking.overlap"))
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	events, err := c.newPublisher(v)
	if err != nil {
		return err
	}
	defer events.Close()

	pipeline, err := ingest.NewPipeline(ck, embedder, store, events, c.logger, ingest.Config{})
	if err != nil {
		return fmt.Errorf("creating ingest pipeline: %w", err)
	}

	registry := agent.NewDefaultRegistry(embedder, store)
	engine, err := agent.NewEngine(registry, nil, c.logger, v.GetInt("agent.max_steps"))
	if err != nil {
		return fmt.Errorf("creating agent engine: %w", err)
	}

	collection := v.GetString("vector_store.collection")
	router, err := query.NewRouter(embedder, store, engine, c.logger, collection)
	if err != nil {
		return fmt.Errorf("creating query router: %w", err)
	}

	server, err := api.NewServer(api.Config{
		ListenAddr: v.GetString("api.listen"),
		Collection: collection,
	}, pipeline, router, store, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}

func (c *ServeCommander) newPublisher(v *viper.Viper) (eventstream.Publisher, error) {
	if !v.GetBool("events.enabled") {
		return nop.NewPublisher(), nil
	}

	publisher, err := eskafka.NewPublisher(eskafka.Config{
		Brokers: v.GetStringSlice("events.brokers"),
		Topic:   v.GetString("events.topic"),
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}

	c.logger.Info("publishing document events",
		zap.Strings("brokers", v.GetStringSlice("events.brokers")),
		zap.String("topic", v.GetString("events.topic")),
	)

	return publisher, nil
}
