package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Cfg is loaded once at startup by Load and treated as immutable afterwards.
var Cfg *Config

type Config struct {
	Server ServerConfig `yaml:"server"`
	JWT    JWTConfig    `yaml:"jwt"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	OSS    OSSConfig    `yaml:"oss"`
	MQ     MQConfig     `yaml:"mq"`
	RAG    RAGConfig    `yaml:"rag"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

type JWTConfig struct {
	SecretKey string `yaml:"secret_key"`
}

type MySQLConfig struct {
	DSN string `yaml:"dsn"`
}

type OSSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	BucketName      string `yaml:"bucket_name"`
}

type MQConfig struct {
	// Enabled switches ingestion between the RocketMQ queue and the
	// in-process worker pool.
	Enabled    bool     `yaml:"enabled"`
	NameServer []string `yaml:"name_server"`
}

// RAGConfig selects the RAG backends and providers. The selectors form a
// closed set validated at load time; the engine is constructed from them once
// and never re-reads them.
type RAGConfig struct {
	// StoreBackend: local | milvus | pgvector
	StoreBackend string `yaml:"store_backend"`
	// EmbedProvider: local | openai | gemini
	EmbedProvider string `yaml:"embed_provider"`
	// LLMProvider: none | ollama | openai | gemini
	LLMProvider string `yaml:"llm_provider"`

	StoreDir       string `yaml:"store_dir"`
	CollectionName string `yaml:"collection_name"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	Milvus   MilvusConfig   `yaml:"milvus"`
	Postgres PostgresConfig `yaml:"postgres"`

	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
	Ollama OllamaConfig `yaml:"ollama"`

	Rerank RerankConfig `yaml:"rerank"`
}

type MilvusConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	EmbedModel string `yaml:"embed_model"`
	ChatModel  string `yaml:"chat_model"`
}

type GeminiConfig struct {
	APIKey     string `yaml:"api_key"`
	EmbedModel string `yaml:"embed_model"`
	ChatModel  string `yaml:"chat_model"`
}

type OllamaConfig struct {
	ServerURL  string `yaml:"server_url"`
	EmbedModel string `yaml:"embed_model"`
	ChatModel  string `yaml:"chat_model"`
}

type RerankConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

var (
	storeBackends  = map[string]bool{"local": true, "milvus": true, "pgvector": true}
	embedProviders = map[string]bool{"local": true, "openai": true, "gemini": true}
	llmProviders   = map[string]bool{"none": true, "ollama": true, "openai": true, "gemini": true}
)

func Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return err
	}

	Cfg = cfg
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.RAG.StoreBackend == "" {
		c.RAG.StoreBackend = "local"
	}
	if c.RAG.EmbedProvider == "" {
		c.RAG.EmbedProvider = "local"
	}
	if c.RAG.LLMProvider == "" {
		c.RAG.LLMProvider = "none"
	}
	if c.RAG.StoreDir == "" {
		c.RAG.StoreDir = "rag_store"
	}
	if c.RAG.CollectionName == "" {
		c.RAG.CollectionName = "student_docs"
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = 500
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 80
	}
	if c.RAG.OpenAI.EmbedModel == "" {
		c.RAG.OpenAI.EmbedModel = "text-embedding-3-small"
	}
	if c.RAG.OpenAI.ChatModel == "" {
		c.RAG.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if c.RAG.Gemini.EmbedModel == "" {
		c.RAG.Gemini.EmbedModel = "text-embedding-004"
	}
	if c.RAG.Gemini.ChatModel == "" {
		c.RAG.Gemini.ChatModel = "gemini-1.5-flash"
	}
	if c.RAG.Ollama.EmbedModel == "" {
		c.RAG.Ollama.EmbedModel = "nomic-embed-text"
	}
	if c.RAG.Ollama.ChatModel == "" {
		c.RAG.Ollama.ChatModel = "llama3.1:8b"
	}
}

// Secrets can be supplied through the environment instead of the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.RAG.OpenAI.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.RAG.Gemini.APIKey = v
	}
	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		c.JWT.SecretKey = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.RAG.Ollama.ChatModel = v
	}
}

func (c *Config) validate() error {
	if !storeBackends[c.RAG.StoreBackend] {
		return fmt.Errorf("invalid rag.store_backend %q", c.RAG.StoreBackend)
	}
	if !embedProviders[c.RAG.EmbedProvider] {
		return fmt.Errorf("invalid rag.embed_provider %q", c.RAG.EmbedProvider)
	}
	if !llmProviders[c.RAG.LLMProvider] {
		return fmt.Errorf("invalid rag.llm_provider %q", c.RAG.LLMProvider)
	}
	if c.RAG.StoreBackend == "milvus" && c.RAG.Milvus.Endpoint == "" {
		return fmt.Errorf("rag.milvus.endpoint is required for the milvus store backend")
	}
	if c.RAG.StoreBackend == "pgvector" && c.RAG.Postgres.DSN == "" {
		return fmt.Errorf("rag.postgres.dsn is required for the pgvector store backend")
	}
	return nil
}
