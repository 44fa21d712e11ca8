package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

const DefaultInstructions = `You are a helpful technical support assistant for students.
Use the following FAQ information to answer the user's question.
If the FAQ doesn't contain relevant information, provide general helpful guidance.
Provide clear, concise, and helpful responses. If you're referencing the FAQ, mention that.`

type Config struct {
	Port        int              `json:"port"`
	LogConfig   logger.LogConfig `json:"log_config"`
	CORSOrigins []string         `json:"cors_origins"`
	RateLimitMs int              `json:"rate_limit_ms"`
	Corpus      CorpusConfig     `json:"corpus"`
	AI          AIConfig         `json:"ai"`
	Embed       EmbedConfig      `json:"embed"`
	Cache       CacheConfig      `json:"cache"`
	Retrieval   RetrievalConfig  `json:"retrieval"`
	Session     SessionConfig    `json:"session"`
	Completion  CompletionConfig `json:"completion"`
}

type CorpusConfig struct {
	Path       string `json:"path"`
	Format     string `json:"format"`
	Watch      bool   `json:"watch"`
	ReloadCron string `json:"reload_cron"`
}

type AIConfig struct {
	Provider    string           `json:"provider"`
	Model       string           `json:"model"`
	Data        interface{}      `json:"data"`
	Timeout     int              `json:"timeout"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	Fallbacks   []ProviderConfig `json:"fallbacks"`
}

// ProviderConfig names an extra generative backend tried after the primary one.
type ProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type EmbedConfig struct {
	Provider       string      `json:"provider"`
	Model          string      `json:"model"`
	Data           interface{} `json:"data"`
	Timeout        int         `json:"timeout"`
	BatchSize      int         `json:"batch_size"`
	QueryCacheSize int         `json:"query_cache_size"`
	QueryCacheTTL  int         `json:"query_cache_ttl"`
}

type CacheConfig struct {
	Type        string          `json:"type"`
	FileStore   FileStoreConfig `json:"file_store"`
	Database    DatabaseConfig  `json:"database"`
	MaxAgeDays  int             `json:"max_age_days"`
	CleanupCron string          `json:"cleanup_cron"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type RetrievalConfig struct {
	TopK         int     `json:"top_k"`
	MinScore     float64 `json:"min_score"`
	BuildTimeout int     `json:"build_timeout"`
}

type SessionConfig struct {
	MaxMessages     int    `json:"max_messages"`
	RetentionHours  int    `json:"retention_hours"`
	PruneCron       string `json:"prune_cron"`
	HistoryMessages int    `json:"history_messages"`
	HistoryChars    int    `json:"history_chars"`
}

// CompletionConfig controls the retry policy around the generative backend.
// MaxRetries < 0 disables retries, 0 selects the default.
type CompletionConfig struct {
	MaxRetries       int    `json:"max_retries"`
	InitialBackoffMs int    `json:"initial_backoff_ms"`
	MaxBackoffMs     int    `json:"max_backoff_ms"`
	Instructions     string `json:"instructions"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) error {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if strings.TrimSpace(cfg.Corpus.Path) == "" {
		return fmt.Errorf("corpus.path is required")
	}
	if err := applyAIDefaults(&cfg.AI); err != nil {
		return err
	}
	applyEmbedDefaults(&cfg.Embed)
	if err := applyCacheDefaults(&cfg.Cache); err != nil {
		return err
	}
	applyRetrievalDefaults(&cfg.Retrieval)
	applySessionDefaults(&cfg.Session)
	applyCompletionDefaults(&cfg.Completion)
	return nil
}

func applyAIDefaults(cfg *AIConfig) error {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider != "" && strings.TrimSpace(cfg.Model) == "" {
		switch cfg.Provider {
		case "openai", "openrouter":
			cfg.Model = "gpt-4o-mini"
		case "gemini":
			cfg.Model = "gemini-2.0-flash"
		case "ollama":
			cfg.Model = "llama3.2"
		default:
			return fmt.Errorf("ai.model is required for provider %s", cfg.Provider)
		}
	}
	for i, fb := range cfg.Fallbacks {
		if strings.TrimSpace(fb.Provider) == "" || strings.TrimSpace(fb.Model) == "" {
			return fmt.Errorf("ai.fallbacks[%d] provider and model are required", i)
		}
		cfg.Fallbacks[i].Provider = strings.ToLower(strings.TrimSpace(fb.Provider))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 350
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	return nil
}

func applyEmbedDefaults(cfg *EmbedConfig) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = "local"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		switch cfg.Provider {
		case "openai":
			cfg.Model = "text-embedding-3-small"
		case "gemini":
			cfg.Model = "gemini-embedding-001"
		case "ollama":
			cfg.Model = "nomic-embed-text"
		default:
			cfg.Model = "hash-256"
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = 10000
	}
	if cfg.QueryCacheTTL <= 0 {
		cfg.QueryCacheTTL = 7200
	}
}

func applyCacheDefaults(cfg *CacheConfig) error {
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Type == "" {
		cfg.Type = "file"
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 30
	}
	if cfg.CleanupCron == "" {
		cfg.CleanupCron = "30 3 * * *"
	}
	switch cfg.Type {
	case "none":
	case "file":
		if cfg.FileStore.Type == "" {
			cfg.FileStore.Type = "local"
		}
		if cfg.FileStore.Data == nil && cfg.FileStore.Type == "local" {
			cfg.FileStore.Data = map[string]interface{}{"dir": ".cache"}
		}
	case "postgres":
		if cfg.Database.DSN == "" && cfg.Database.Host == "" {
			return fmt.Errorf("cache.database dsn or host is required for postgres cache")
		}
		if cfg.Database.Port == 0 {
			cfg.Database.Port = 5432
		}
	default:
		return fmt.Errorf("cache.type must be file, postgres or none")
	}
	return nil
}

func applyRetrievalDefaults(cfg *RetrievalConfig) {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.25
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = 300
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 200
	}
	if cfg.RetentionHours <= 0 {
		cfg.RetentionHours = 72
	}
	if cfg.PruneCron == "" {
		cfg.PruneCron = "*/10 * * * *"
	}
	if cfg.HistoryMessages <= 0 {
		cfg.HistoryMessages = 10
	}
	if cfg.HistoryChars <= 0 {
		cfg.HistoryChars = 4000
	}
}

func applyCompletionDefaults(cfg *CompletionConfig) {
	switch {
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = 2
	}
	if cfg.InitialBackoffMs <= 0 {
		cfg.InitialBackoffMs = 500
	}
	if cfg.MaxBackoffMs <= 0 {
		cfg.MaxBackoffMs = 4000
	}
	if strings.TrimSpace(cfg.Instructions) == "" {
		cfg.Instructions = DefaultInstructions
	}
}
