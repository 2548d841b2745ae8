package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent quarry configuration stored as
// config.toml in the .quarry/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Chunking    ChunkingConfig    `toml:"chunking"`
	Agent       AgentConfig       `toml:"agent"`
	Events      EventsConfig      `toml:"events"`
	Ingest      IngestConfig      `toml:"ingest"`
}

// StorageConfig holds settings for the sqlite-backed vector store.
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// API server. Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	UseTLS     bool   `toml:"use_tls,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// ChunkingConfig holds text chunking settings.
type ChunkingConfig struct {
	Size    uint `toml:"size,omitempty"`
	Overlap uint `toml:"overlap,omitempty"`
}

// AgentConfig holds agentic query settings.
type AgentConfig struct {
	MaxSteps uint `toml:"max_steps,omitempty"`
}

// EventsConfig holds event stream settings.
type EventsConfig struct {
	Enabled bool     `toml:"enabled,omitempty"`
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	WatchDir string `toml:"watch_dir,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func uintKey(get func(c *Config) uint, set func(c *Config, n uint)) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if get(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(get(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid unsigned integer %q: %w", v, err)
			}
			set(c, uint(n))
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
	"vector_store.api_key": {
		get: func(c *Config) string { return c.VectorStore.APIKey },
		set: func(c *Config, v string) error { c.VectorStore.APIKey = v; return nil },
	},
	"vector_store.use_tls": {
		get: func(c *Config) string { return strconv.FormatBool(c.VectorStore.UseTLS) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for vector_store.use_tls: %w", err)
			}
			c.VectorStore.UseTLS = b
			return nil
		},
	},
	"vector_store.collection": {
		get: func(c *Config) string { return c.VectorStore.Collection },
		set: func(c *Config, v string) error { c.VectorStore.Collection = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.api_key": {
		get: func(c *Config) string { return c.Embedding.APIKey },
		set: func(c *Config, v string) error { c.Embedding.APIKey = v; return nil },
	},
	"embedding.dimensions": uintKey(
		func(c *Config) uint { return c.Embedding.Dimensions },
		func(c *Config, n uint) { c.Embedding.Dimensions = n },
	),
	"chunking.size": uintKey(
		func(c *Config) uint { return c.Chunking.Size },
		func(c *Config, n uint) { c.Chunking.Size = n },
	),
	"chunking.overlap": uintKey(
		func(c *Config) uint { return c.Chunking.Overlap },
		func(c *Config, n uint) { c.Chunking.Overlap = n },
	),
	"agent.max_steps": uintKey(
		func(c *Config) uint { return c.Agent.MaxSteps },
		func(c *Config, n uint) { c.Agent.MaxSteps = n },
	),
	"events.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Events.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for events.enabled: %w", err)
			}
			c.Events.Enabled = b
			return nil
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = nil
			for _, broker := range strings.Split(v, ",") {
				if broker = strings.TrimSpace(broker); broker != "" {
					c.Events.Brokers = append(c.Events.Brokers, broker)
				}
			}
			return nil
		},
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"ingest.watch_dir": {
		get: func(c *Config) string { return c.Ingest.WatchDir },
		set: func(c *Config, v string) error { c.Ingest.WatchDir = v; return nil },
	},
}
