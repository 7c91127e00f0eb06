// Package config loads application configuration from a YAML file with
// environment variable overrides. A .env file next to the binary is read
// first so local development needs no exported variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// OpenAI configures the embedding and chat model client.
type OpenAI struct {
	BaseURL       string  `yaml:"base_url"`
	APIKeyEnv     string  `yaml:"api_key_env"`
	EmbedModel    string  `yaml:"embed_model"`
	ChatModel     string  `yaml:"chat_model"`
	TimeoutSecs   int     `yaml:"timeout_secs"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// Qdrant configures the vector store connection.
type Qdrant struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	Dims       int    `yaml:"dims"`
}

// NATS configures the ingest job queue. An empty URL disables queueing
// and documents are processed inline.
type NATS struct {
	URL string `yaml:"url"`
}

// Ingest configures the document pipeline.
type Ingest struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	BatchSize    int `yaml:"batch_size"`
	MinWords     int `yaml:"min_words"`
	Workers      int `yaml:"workers"`
}

// Answer configures retrieval and response generation.
type Answer struct {
	TopK             int     `yaml:"top_k"`
	ScoreThreshold   float64 `yaml:"score_threshold"`
	Temperature      float64 `yaml:"temperature"`
	SummaryThreshold int     `yaml:"summary_threshold"`
}

// Server configures the HTTP API.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Config is the root configuration.
type Config struct {
	Server Server `yaml:"server"`
	OpenAI OpenAI `yaml:"openai"`
	Qdrant Qdrant `yaml:"qdrant"`
	NATS   NATS   `yaml:"nats"`
	Ingest Ingest `yaml:"ingest"`
	Answer Answer `yaml:"answer"`
}

// APIKey resolves the OpenAI API key from the configured environment
// variable.
func (o OpenAI) APIKey() string {
	return os.Getenv(o.APIKeyEnv)
}

// Load reads the config file at path, fills defaults, and applies
// environment overrides. A missing file is not an error: defaults plus
// environment are used.
func Load(path string) (*Config, error) {
	godotenv.Load()

	cfg := defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(cfg)
	fillDefaults(cfg)
	return cfg, nil
}

func defaults() *Config {
	c := &Config{}
	fillDefaults(c)
	return c
}

func fillDefaults(c *Config) {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.CORSOrigin == "" {
		c.Server.CORSOrigin = "*"
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.APIKeyEnv == "" {
		c.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.OpenAI.EmbedModel == "" {
		c.OpenAI.EmbedModel = "text-embedding-3-small"
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if c.OpenAI.TimeoutSecs == 0 {
		c.OpenAI.TimeoutSecs = 60
	}
	if c.Qdrant.URL == "" {
		c.Qdrant.URL = "localhost:6334"
	}
	if c.Qdrant.Collection == "" {
		c.Qdrant.Collection = "ciudadano-digital"
	}
	if c.Qdrant.Dims == 0 {
		c.Qdrant.Dims = 1536
	}
	if c.Ingest.ChunkSize == 0 {
		c.Ingest.ChunkSize = 800
	}
	if c.Ingest.ChunkOverlap == 0 {
		c.Ingest.ChunkOverlap = 120
	}
	if c.Ingest.BatchSize == 0 {
		c.Ingest.BatchSize = 100
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 4
	}
	if c.Answer.TopK == 0 {
		c.Answer.TopK = 5
	}
	if c.Answer.ScoreThreshold == 0 {
		c.Answer.ScoreThreshold = 0.35
	}
	if c.Answer.Temperature == 0 {
		c.Answer.Temperature = 0.2
	}
	if c.Answer.SummaryThreshold == 0 {
		c.Answer.SummaryThreshold = 5
	}
}

func applyEnv(c *Config) {
	setStr(&c.Server.Port, "PORT")
	setStr(&c.Server.CORSOrigin, "CORS_ORIGIN")
	setStr(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setStr(&c.OpenAI.EmbedModel, "OPENAI_EMBED_MODEL")
	setStr(&c.OpenAI.ChatModel, "OPENAI_CHAT_MODEL")
	setStr(&c.Qdrant.URL, "QDRANT_URL")
	setStr(&c.Qdrant.Collection, "QDRANT_COLLECTION")
	setStr(&c.NATS.URL, "NATS_URL")
	setInt(&c.Ingest.BatchSize, "INGEST_BATCH_SIZE")
	setInt(&c.Ingest.MinWords, "INGEST_MIN_WORDS")
	setInt(&c.Answer.TopK, "ANSWER_TOP_K")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
