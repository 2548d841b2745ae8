package config

const (
	defaultAPIListen       = ":8080"
	defaultClientAPITarget = "http://localhost:8080"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "documents"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultChunkSize    = 1500
	defaultChunkOverlap = 100

	defaultAgentMaxSteps = 5

	defaultEventsTopic = "quarry.documents"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Chunking: ChunkingConfig{
			Size:    defaultChunkSize,
			Overlap: defaultChunkOverlap,
		},
		Agent: AgentConfig{
			MaxSteps: defaultAgentMaxSteps,
		},
		Events: EventsConfig{
			Enabled: false,
			Topic:   defaultEventsTopic,
		},
	}
}
