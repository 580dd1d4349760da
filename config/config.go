package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the docchat service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RAG       RAGConfig       `mapstructure:"rag"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug bool `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// StorageConfig groups the persistence backends
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig is the session/message/file store connection config
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string from the config. URL wins when set.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig is the optional answer-cache backend. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RAGConfig contains the retrieval pipeline knobs
type RAGConfig struct {
	ChunkSize          int    `mapstructure:"chunk_size"`
	ChunkOverlap       int    `mapstructure:"chunk_overlap"`
	TopK               int    `mapstructure:"top_k"`
	ContextBudget      int    `mapstructure:"context_budget"`
	EmbeddingModel     string `mapstructure:"embedding_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension"`
	KeywordSearch      bool   `mapstructure:"keyword_search"`
}

// LLMConfig contains the generation tiers
type LLMConfig struct {
	Remote RemoteLLMConfig `mapstructure:"remote"`
	Local  LocalLLMConfig  `mapstructure:"local"`
}

// RemoteLLMConfig configures the hosted-model tier. An empty APIKey means
// the remote tier is skipped entirely.
type RemoteLLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LocalLLMConfig configures the local-model tier, an OpenAI-compatible
// inference server such as ollama or llama.cpp. Empty BaseURL disables it.
type LocalLLMConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ExtractConfig configures the text extraction collaborator. ServiceURL
// points at an external extractor for formats we do not parse in-process
// (PDF, DOCX, images).
type ExtractConfig struct {
	ServiceURL string        `mapstructure:"service_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults() {
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.redis.ttl", 10*time.Minute)
	viper.SetDefault("rag.chunk_size", 1000)
	viper.SetDefault("rag.chunk_overlap", 200)
	viper.SetDefault("rag.top_k", 3)
	viper.SetDefault("rag.context_budget", 4000)
	viper.SetDefault("rag.embedding_model", "hashing")
	viper.SetDefault("rag.embedding_dimension", 384)
	viper.SetDefault("rag.keyword_search", true)
	viper.SetDefault("llm.remote.base_url", "https://router.huggingface.co/v1")
	viper.SetDefault("llm.remote.model", "mistralai/Mistral-7B-Instruct-v0.1")
	viper.SetDefault("llm.remote.temperature", 0.7)
	viper.SetDefault("llm.remote.max_tokens", 512)
	viper.SetDefault("llm.remote.timeout", 30*time.Second)
	viper.SetDefault("llm.local.base_url", "http://localhost:11434/v1")
	viper.SetDefault("llm.local.model", "llama3.2")
	viper.SetDefault("llm.local.max_tokens", 256)
	viper.SetDefault("llm.local.timeout", 60*time.Second)
	viper.SetDefault("extract.timeout", 30*time.Second)
	viper.SetDefault("telemetry.enabled", true)
}

// LoadConfig reads configuration from the given file, or from config.json
// in the usual locations, with DOCCHAT_* environment overrides. A missing
// config file is fine; defaults plus environment are enough to run.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DOCCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}
