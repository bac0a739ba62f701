// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/northbound/rag-core/internal/conversation"
	"github.com/northbound/rag-core/internal/ingest"
	"github.com/northbound/rag-core/internal/vectorindex"
	"github.com/northbound/rag-core/internal/watcher"
)

// Config is the full process configuration. Every field binds to an
// environment variable with the RAG_ prefix (RAG_DATA_DIR, RAG_INDEX_PATH,
// RAG_WATCHER_MAX_CONCURRENT, ...); a .env file in the working directory
// is loaded first in development so local overrides don't need to be
// exported by hand.
type Config struct {
	DataDir      string `mapstructure:"data_dir"`
	IndexPath    string `mapstructure:"index_path"`
	MetadataDir  string `mapstructure:"metadata_dir"`
	ProgressPath string `mapstructure:"progress_path"`
	LogFile      string `mapstructure:"log_file"`

	Backend  BackendConfig  `mapstructure:"backend"`
	Index    IndexConfig    `mapstructure:"index"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Chunker  ChunkerConfig  `mapstructure:"chunker"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Chat     ChatConfig     `mapstructure:"chat"`
}

// BackendConfig selects which vector backend the engine writes to:
// "index" is the self-optimizing local index, "qdrant" the filterable
// store. Listing/aggregation intents are only answerable on "qdrant".
type BackendConfig struct {
	Type             string `mapstructure:"type"`
	QdrantAddr       string `mapstructure:"qdrant_addr"`
	QdrantCollection string `mapstructure:"qdrant_collection"`
}

// IndexConfig exposes the vectorindex tier and rebuild thresholds.
type IndexConfig struct {
	Dimension                     int     `mapstructure:"dimension"`
	FlatMaxPopulation             int     `mapstructure:"flat_max_population"`
	GraphMaxPopulation            int     `mapstructure:"graph_max_population"`
	PQMinPopulation               int     `mapstructure:"pq_min_population"`
	SoftRebuildDeletedFraction    float64 `mapstructure:"soft_rebuild_deleted_fraction"`
	StartupRebuildDeletedFraction float64 `mapstructure:"startup_rebuild_deleted_fraction"`
	OverFetchFactor               int     `mapstructure:"over_fetch_factor"`
}

// EmbedderConfig selects and parameterizes the embedding provider.
type EmbedderConfig struct {
	Type       string `mapstructure:"type"` // openai | ollama | mock
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// LLMConfig parameterizes response synthesis. An empty APIKey leaves the
// system in extractive mode.
type LLMConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// ChunkerConfig sets chunk sizing.
type ChunkerConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// IngestConfig bounds the ingestion engine.
type IngestConfig struct {
	MaxFileSizeMB int `mapstructure:"max_file_size_mb"`
}

// WatcherConfig controls the folder monitor.
type WatcherConfig struct {
	Paths          []string      `mapstructure:"paths"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	RescanInterval time.Duration `mapstructure:"rescan_interval"`
	DebounceDelay  time.Duration `mapstructure:"debounce_delay"`
	Notify         bool          `mapstructure:"notify"`
}

// ChatConfig controls the conversation graph.
type ChatConfig struct {
	Mode             string `mapstructure:"mode"` // api_single_turn | interactive
	ContextMaxTokens int    `mapstructure:"context_max_tokens"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first (missing is fine); then viper binds
// RAG_-prefixed variables over the defaults below.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// AutomaticEnv only resolves keys viper already knows about, so bind
	// every defaulted key explicitly.
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("index_path", "data/index/vectors.bin")
	v.SetDefault("metadata_dir", "data/metadata")
	v.SetDefault("progress_path", "data/progress/ingestion_progress.json")
	v.SetDefault("log_file", "rag-core.log")

	v.SetDefault("backend.type", "index")
	v.SetDefault("backend.qdrant_addr", "localhost:6334")
	v.SetDefault("backend.qdrant_collection", "documents")

	idx := vectorindex.DefaultConfig()
	v.SetDefault("index.dimension", 384)
	v.SetDefault("index.flat_max_population", idx.FlatMaxPopulation)
	v.SetDefault("index.graph_max_population", idx.GraphMaxPopulation)
	v.SetDefault("index.pq_min_population", idx.PQMinPopulation)
	v.SetDefault("index.soft_rebuild_deleted_fraction", idx.SoftRebuildDeletedFraction)
	v.SetDefault("index.startup_rebuild_deleted_fraction", idx.StartupRebuildDeletedFraction)
	v.SetDefault("index.over_fetch_factor", idx.OverFetchFactor)

	v.SetDefault("embedder.type", "ollama")
	v.SetDefault("embedder.model", "")
	v.SetDefault("embedder.api_key", "")
	v.SetDefault("embedder.base_url", "")
	v.SetDefault("embedder.max_retries", 3)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")

	v.SetDefault("chunker.size", 1000)
	v.SetDefault("chunker.overlap", 100)

	v.SetDefault("ingest.max_file_size_mb", ingest.DefaultConfig().MaxFileSizeMB)

	w := watcher.DefaultConfig()
	v.SetDefault("watcher.paths", []string{"./watch"})
	v.SetDefault("watcher.max_concurrent", w.MaxConcurrent)
	v.SetDefault("watcher.rescan_interval", w.RescanInterval)
	v.SetDefault("watcher.debounce_delay", w.DebounceDelay)
	v.SetDefault("watcher.notify", false)

	v.SetDefault("chat.mode", string(conversation.ModeAPISingleTurn))
	v.SetDefault("chat.context_max_tokens", 4000)
}

func (c *Config) validate() error {
	switch c.Backend.Type {
	case "index", "qdrant":
	default:
		return fmt.Errorf("config: unknown backend.type %q", c.Backend.Type)
	}
	switch c.Chat.Mode {
	case string(conversation.ModeAPISingleTurn), string(conversation.ModeInteractive):
	default:
		return fmt.Errorf("config: unknown chat.mode %q", c.Chat.Mode)
	}
	if c.Index.Dimension <= 0 {
		return fmt.Errorf("config: index.dimension must be positive, got %d", c.Index.Dimension)
	}
	return nil
}

// VectorIndexConfig maps the configured thresholds onto the stock defaults
// for everything not exposed as an env knob.
func (c *Config) VectorIndexConfig() vectorindex.Config {
	cfg := vectorindex.DefaultConfig()
	cfg.FlatMaxPopulation = c.Index.FlatMaxPopulation
	cfg.GraphMaxPopulation = c.Index.GraphMaxPopulation
	cfg.PQMinPopulation = c.Index.PQMinPopulation
	cfg.SoftRebuildDeletedFraction = c.Index.SoftRebuildDeletedFraction
	cfg.StartupRebuildDeletedFraction = c.Index.StartupRebuildDeletedFraction
	cfg.OverFetchFactor = c.Index.OverFetchFactor
	return cfg
}

// IngestConfig converts to the engine's own config type.
func (c *Config) IngestConfig() ingest.Config {
	return ingest.Config{MaxFileSizeMB: c.Ingest.MaxFileSizeMB}
}

// WatcherConfig converts to the monitor's own config type.
func (c *Config) WatcherConfig() watcher.Config {
	return watcher.Config{
		MaxConcurrent:  c.Watcher.MaxConcurrent,
		RescanInterval: c.Watcher.RescanInterval,
		DebounceDelay:  c.Watcher.DebounceDelay,
		Notify:         c.Watcher.Notify,
	}
}

// ChatMode converts the configured mode string to a conversation.Mode.
func (c *Config) ChatMode() conversation.Mode {
	return conversation.Mode(c.Chat.Mode)
}

// EmbedderSettings flattens the embedder section into the map
// embeddings.NewEmbedder consumes.
func (c *Config) EmbedderSettings() map[string]string {
	return map[string]string{
		"api_key":  c.Embedder.APIKey,
		"model":    c.Embedder.Model,
		"base_url": c.Embedder.BaseURL,
	}
}
