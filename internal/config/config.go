// Package config provides configuration loading for the pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nucleus/homegraph/internal/fault"
)

// Destination names accepted in destinations.enabled.
const (
	DestinationFile   = "file"
	DestinationSearch = "search"
	DestinationGraph  = "graph"
)

// Embedding provider names.
const (
	ProviderVoyage = "voyage"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
	ProviderMock   = "mock"
)

// SimilarityScopeNeighborhood limits SIMILAR_TO candidates to properties in
// the same neighborhood. It is the only scope currently implemented.
const SimilarityScopeNeighborhood = "same_neighborhood"

// Sources locates the pipeline inputs.
type Sources struct {
	PropertiesPath    string `yaml:"properties_path"`
	NeighborhoodsPath string `yaml:"neighborhoods_path"`
	WikipediaDBPath   string `yaml:"wikipedia_db_path"`
	LocationsPath     string `yaml:"locations_path"` // optional zip reference
}

// Embedding configures the embedding subsystem.
type Embedding struct {
	Provider   string `yaml:"provider"`
	Dimension  int    `yaml:"dimension"`
	BatchSize  int    `yaml:"batch_size"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	MaxRetries int    `yaml:"max_retries"`
}

// SearchDestination configures the search store.
type SearchDestination struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	BatchSize int    `yaml:"batch_size"`
}

// GraphDestination configures the graph store.
type GraphDestination struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ObjectStore optionally mirrors the columnar output to an S3-compatible
// bucket after the local write completes.
type ObjectStore struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// FileDestination configures the columnar file writer.
type FileDestination struct {
	OutputDir   string       `yaml:"output_dir"`
	ObjectStore *ObjectStore `yaml:"object_store"` // nil disables upload
}

// Destinations selects and configures the enabled write targets.
type Destinations struct {
	Enabled []string          `yaml:"enabled"`
	Search  SearchDestination `yaml:"search"`
	Graph   GraphDestination  `yaml:"graph"`
	File    FileDestination   `yaml:"file"`
}

// Similarity tunes the SIMILAR_TO edge emitter.
type Similarity struct {
	TopK      int     `yaml:"top_k"`
	Threshold float64 `yaml:"threshold"`
	Scope     string  `yaml:"scope"`
}

// Denormalization tunes the property_relationships builder.
type Denormalization struct {
	MaxRelatedWikipedia int `yaml:"max_related_wikipedia"`
}

// Config is the full pipeline configuration.
type Config struct {
	Sources          Sources         `yaml:"sources"`
	SampleSize       int             `yaml:"sample_size"` // 0 = unlimited
	Embedding        Embedding       `yaml:"embedding"`
	Destinations     Destinations    `yaml:"destinations"`
	Similarity       Similarity      `yaml:"similarity"`
	Denormalization  Denormalization `yaml:"denormalization"`
	BatchTimeoutSecs int             `yaml:"batch_timeout_secs"`
	TopicClusters    bool            `yaml:"topic_clusters"`
}

// Default returns the configuration defaults before file and env overrides.
func Default() *Config {
	return &Config{
		Embedding: Embedding{
			Provider:   ProviderMock,
			Dimension:  1024,
			BatchSize:  32,
			MaxRetries: 3,
		},
		Destinations: Destinations{
			Enabled: []string{DestinationFile, DestinationSearch, DestinationGraph},
			Search: SearchDestination{
				Host:      "localhost",
				Port:      9200,
				BatchSize: 500,
			},
			Graph: GraphDestination{
				URI:      "bolt://localhost:7687",
				User:     "neo4j",
				Database: "neo4j",
			},
			File: FileDestination{
				OutputDir: "data/gold",
			},
		},
		Similarity: Similarity{
			TopK:      10,
			Threshold: 0.85,
			Scope:     SimilarityScopeNeighborhood,
		},
		Denormalization: Denormalization{
			MaxRelatedWikipedia: 3,
		},
		BatchTimeoutSecs: 30,
	}
}

// Load reads the YAML config file, applies environment overrides and
// validates the result. A missing path loads defaults plus env only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fault.Newf(fault.CodeConfig, "read config %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fault.Newf(fault.CodeConfig, "parse config %s: %v", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file values. Secrets are
// expected to arrive this way rather than in the YAML.
func applyEnv(cfg *Config) {
	cfg.Embedding.APIKey = getEnv("HOMEGRAPH_EMBED_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.Provider = getEnv("HOMEGRAPH_EMBED_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.Dimension = getEnvInt("HOMEGRAPH_EMBED_DIM", cfg.Embedding.Dimension)
	cfg.Destinations.Search.Host = getEnv("HOMEGRAPH_SEARCH_HOST", cfg.Destinations.Search.Host)
	cfg.Destinations.Search.Port = getEnvInt("HOMEGRAPH_SEARCH_PORT", cfg.Destinations.Search.Port)
	cfg.Destinations.Search.Username = getEnv("HOMEGRAPH_SEARCH_USER", cfg.Destinations.Search.Username)
	cfg.Destinations.Search.Password = getEnv("HOMEGRAPH_SEARCH_PASS", cfg.Destinations.Search.Password)
	cfg.Destinations.Graph.URI = getEnv("HOMEGRAPH_GRAPH_URI", cfg.Destinations.Graph.URI)
	cfg.Destinations.Graph.User = getEnv("HOMEGRAPH_GRAPH_USER", cfg.Destinations.Graph.User)
	cfg.Destinations.Graph.Password = getEnv("HOMEGRAPH_GRAPH_PASS", cfg.Destinations.Graph.Password)
}

// Validate checks the configuration before the run starts. All failures are
// E_CONFIG and fatal.
func (c *Config) Validate() error {
	if c.Sources.PropertiesPath == "" {
		return fault.Newf(fault.CodeConfig, "sources.properties_path is required")
	}
	if c.Sources.NeighborhoodsPath == "" {
		return fault.Newf(fault.CodeConfig, "sources.neighborhoods_path is required")
	}
	switch c.Embedding.Provider {
	case ProviderVoyage, ProviderOpenAI, ProviderLocal, ProviderMock:
	default:
		return fault.Newf(fault.CodeConfig, "unknown embedding.provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fault.Newf(fault.CodeConfig, "embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.BatchSize <= 0 {
		return fault.Newf(fault.CodeConfig, "embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if (c.Embedding.Provider == ProviderVoyage || c.Embedding.Provider == ProviderOpenAI) && c.Embedding.APIKey == "" {
		return fault.Newf(fault.CodeConfig, "embedding.api_key is required for provider %q", c.Embedding.Provider)
	}
	if len(c.Destinations.Enabled) == 0 {
		return fault.Newf(fault.CodeConfig, "destinations.enabled must name at least one destination")
	}
	for _, d := range c.Destinations.Enabled {
		switch d {
		case DestinationFile, DestinationSearch, DestinationGraph:
		default:
			return fault.Newf(fault.CodeConfig, "unknown destination %q", d)
		}
	}
	if c.DestinationEnabled(DestinationFile) && c.Destinations.File.OutputDir == "" {
		return fault.Newf(fault.CodeConfig, "destinations.file.output_dir is required")
	}
	if c.Similarity.TopK <= 0 {
		return fault.Newf(fault.CodeConfig, "similarity.top_k must be positive, got %d", c.Similarity.TopK)
	}
	if c.Similarity.Threshold < 0 || c.Similarity.Threshold > 1 {
		return fault.Newf(fault.CodeConfig, "similarity.threshold must be in [0,1], got %v", c.Similarity.Threshold)
	}
	if c.Similarity.Scope != SimilarityScopeNeighborhood {
		return fault.Newf(fault.CodeConfig, "unsupported similarity.scope %q", c.Similarity.Scope)
	}
	if c.Denormalization.MaxRelatedWikipedia < 0 {
		return fault.Newf(fault.CodeConfig, "denormalization.max_related_wikipedia must be >= 0")
	}
	if c.BatchTimeoutSecs <= 0 {
		return fault.Newf(fault.CodeConfig, "batch_timeout_secs must be positive")
	}
	return nil
}

// DestinationEnabled reports whether the named destination is enabled.
func (c *Config) DestinationEnabled(name string) bool {
	for _, d := range c.Destinations.Enabled {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}

// BatchTimeout returns the per-batch network timeout applied to embedding
// calls and destination bulk writes.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSecs) * time.Second
}

// SearchAddress renders the search-store base URL.
func (c *Config) SearchAddress() string {
	return fmt.Sprintf("http://%s:%d", c.Destinations.Search.Host, c.Destinations.Search.Port)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
