package config

import "os"

// Defaults.
const (
	DefaultEndpoint    = "http://localhost:8001/v1/embeddings"
	DefaultBatchSize   = 32
	DefaultIndexType   = "flat"
	DefaultLogLevel    = "info"
	DefaultServerHost  = "localhost"
	DefaultServerPort  = 8090
	DefaultDebounce    = "2s"
	DefaultGitMethod   = "auto"
	DefaultGitRPS      = 1.2
	DefaultWikiRPS     = 5
	DefaultWikiPage    = 50
	DefaultONNXDims    = 384
	DefaultONNXTokens  = 256
	DefaultONNXCache   = 10000
	DefaultProvider    = "http"
	DefaultOCRCommand  = "tesseract"
	envGitHubToken     = "GITHUB_TOKEN"
	envKuraGitHubToken = "KURA_GITHUB_TOKEN"
	envConfluenceUser  = "KURA_CONFLUENCE_USER"
	envConfluenceToken = "KURA_CONFLUENCE_TOKEN"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
		if cfg.Debug {
			cfg.LogLevel = "debug"
		}
	}
	if cfg.VectorStore.IndexType == "" {
		cfg.VectorStore.IndexType = DefaultIndexType
	}
	if cfg.Sources.OCRCommand == "" {
		cfg.Sources.OCRCommand = DefaultOCRCommand
	}
	applyEmbeddingDefaults(&cfg.Embedding)
	if g := cfg.Sources.Git; g != nil {
		applyGitDefaults(g)
	}
	if c := cfg.Sources.Confluence; c != nil {
		applyConfluenceDefaults(c)
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = DefaultDebounce
	}
}

func applyEmbeddingDefaults(e *EmbeddingConfig) {
	if e.Provider == "" {
		e.Provider = DefaultProvider
	}
	if e.Endpoint == "" {
		e.Endpoint = DefaultEndpoint
	}
	if e.BatchSize == 0 {
		e.BatchSize = DefaultBatchSize
	}
	if e.Dimensions == 0 && e.Provider != DefaultProvider {
		e.Dimensions = DefaultONNXDims
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = DefaultONNXTokens
	}
	if e.CacheSize == 0 {
		e.CacheSize = DefaultONNXCache
	}
}

func applyGitDefaults(g *GitConfig) {
	if g.Method == "" {
		g.Method = DefaultGitMethod
	}
	if g.RequestsPerSecond == 0 {
		g.RequestsPerSecond = DefaultGitRPS
	}
}

func applyConfluenceDefaults(c *ConfluenceConfig) {
	if c.PageSize == 0 {
		c.PageSize = DefaultWikiPage
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = DefaultWikiRPS
	}
}

// ApplyEnv fills credentials left empty in the config from the environment.
// Call it after .env files are loaded.
func ApplyEnv(cfg *Config) {
	if g := cfg.Sources.Git; g != nil && g.Token == "" {
		g.Token = os.Getenv(envKuraGitHubToken)
		if g.Token == "" {
			g.Token = os.Getenv(envGitHubToken)
		}
	}
	if c := cfg.Sources.Confluence; c != nil {
		if c.User == "" {
			c.User = os.Getenv(envConfluenceUser)
		}
		if c.Token == "" {
			c.Token = os.Getenv(envConfluenceToken)
		}
	}
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
