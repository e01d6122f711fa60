// Package config loads and holds the application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Conf is the process-wide configuration populated by Init.
var Conf Config

// Config mirrors configs/config.yaml.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	VectorIndex   VectorIndexConfig   `mapstructure:"vector_index"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Prompt        PromptConfig        `mapstructure:"prompt"`
	Persistence   PersistenceConfig   `mapstructure:"persistence"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig groups the MySQL and Redis connections.
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig configures the session history mirror. An empty Addr disables it.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

// JWTConfig configures session tokens.
type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	SessionExpireHours int    `mapstructure:"session_expire_hours"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig configures the chat record topic and its archiver consumer.
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig is used when vector_index.provider is "elasticsearch".
type ElasticsearchConfig struct {
	Addresses   string `mapstructure:"addresses"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	IndexName   string `mapstructure:"index_name"`
	VectorField string `mapstructure:"vector_field"`
}

// MinIOConfig configures transcript archiving. An empty Endpoint disables it.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig selects the embedding backend: "openai" (any OpenAI-compatible API) or "gemini".
type EmbeddingConfig struct {
	Provider       string `mapstructure:"provider"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	Dimensions     int    `mapstructure:"dimensions"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// VectorIndexConfig selects the nearest-neighbour backend: "pinecone" or "elasticsearch".
type VectorIndexConfig struct {
	Provider        string         `mapstructure:"provider"`
	APIKey          string         `mapstructure:"api_key"`
	IndexName       string         `mapstructure:"index_name"`
	Host            string         `mapstructure:"host"`
	ControlPlaneURL string         `mapstructure:"control_plane_url"`
	Namespace       string         `mapstructure:"namespace"`
	TopK            int            `mapstructure:"top_k"`
	TimeoutSeconds  int            `mapstructure:"timeout_seconds"`
	Fields          MetadataFields `mapstructure:"fields"`
}

// MetadataFields names the metadata keys carrying a match's title, passage and source URL.
type MetadataFields struct {
	Title string `mapstructure:"title"`
	Text  string `mapstructure:"text"`
	URL   string `mapstructure:"url"`
}

// LLMConfig lists the completion providers and which one is active by default.
type LLMConfig struct {
	Active         string                    `mapstructure:"active"`
	TimeoutSeconds int                       `mapstructure:"timeout_seconds"`
	Providers      map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig describes one completion backend. Type picks the wire-format adapter:
// "openai" (OpenAI, Groq, DeepSeek...), "anthropic", "gemini" or "ollama".
type ProviderConfig struct {
	Type       string              `mapstructure:"type"`
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig holds optional sampling parameters; zero values are not sent.
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// PromptConfig overrides the persona and template texts and sets the context policy.
type PromptConfig struct {
	Persona         string `mapstructure:"persona"`
	HumanTemplate   string `mapstructure:"human_template"`
	ReplayCitations bool   `mapstructure:"replay_citations"`
	MaxHistoryTurns int    `mapstructure:"max_history_turns"`
	MaxPromptChars  int    `mapstructure:"max_prompt_chars"`
}

// PersistenceConfig lists the chat record sinks: any of "mysql", "kafka".
type PersistenceConfig struct {
	Sinks          []string `mapstructure:"sinks"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// envBindings maps config keys to the conventional environment variable names.
var envBindings = map[string][]string{
	"embedding.api_key":               {"EMBEDDING_API_KEY", "OPENAI_API_KEY"},
	"vector_index.api_key":            {"PINECONE_API_KEY"},
	"vector_index.index_name":         {"PINECONE_INDEX_NAME"},
	"vector_index.host":               {"PINECONE_HOST"},
	"llm.active":                      {"LLM_ACTIVE"},
	"llm.providers.openai.api_key":    {"OPENAI_API_KEY"},
	"llm.providers.groq.api_key":      {"GROQ_API_KEY"},
	"llm.providers.anthropic.api_key": {"ANTHROPIC_API_KEY"},
	"llm.providers.gemini.api_key":    {"GEMINI_API_KEY"},
	"database.mysql.dsn":              {"MYSQL_DSN"},
	"database.redis.addr":             {"REDIS_ADDR"},
	"jwt.secret":                      {"JWT_SECRET"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.session_expire_hours", 24)
	v.SetDefault("database.redis.ttl_minutes", 24*60)
	v.SetDefault("kafka.group_id", "cyberchat-archiver")
	v.SetDefault("elasticsearch.vector_field", "vector")
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.timeout_seconds", 15)
	v.SetDefault("vector_index.provider", "pinecone")
	v.SetDefault("vector_index.control_plane_url", "https://api.pinecone.io")
	v.SetDefault("vector_index.top_k", 3)
	v.SetDefault("vector_index.timeout_seconds", 15)
	v.SetDefault("vector_index.fields.title", "video_title")
	v.SetDefault("vector_index.fields.text", "text")
	v.SetDefault("vector_index.fields.url", "video_url")
	v.SetDefault("llm.active", "openai")
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("prompt.replay_citations", true)
	v.SetDefault("persistence.timeout_seconds", 5)
}

// Load reads the YAML file at configPath, applies defaults and environment overrides.
// A missing file is not an error: the service can be configured from the environment alone.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Init loads configPath into Conf and panics on failure.
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}
	Conf = *cfg
}

// Seconds converts a config value in seconds to a duration, using fallback when n <= 0.
func Seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
