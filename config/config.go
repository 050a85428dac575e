// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the YAML configuration of a docent installation.
//
// Defaults are applied first, the YAML document is decoded over them, and
// secrets are then filled from the environment, optionally seeded from a
// .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/blob"
	"github.com/poiesic/docent/core"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure of a Config.
var ErrInvalidConfig = fmt.Errorf("%w: config", core.ErrInvalidInput)

// Storage and index drivers.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverQdrant = "qdrant"
)

// ProviderMock selects the deterministic in-process AI provider.
const ProviderMock = "mock"

// Environment variables read by Load.
const (
	EnvAPIKey          = "DOCENT_API_KEY"
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvGeminiKey       = "GEMINI_API_KEY"
	EnvQdrantKey       = "QDRANT_API_KEY"
	EnvAWSAccessKey    = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretKey    = "AWS_SECRET_ACCESS_KEY"
	EnvAMQPURL         = "DOCENT_AMQP_URL"
	DefaultEnvFile     = ".env"
	redacted           = "REDACTED"
	defaultDataDir     = "./data"
	defaultMetricsAddr = ":9090"
)

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	// Path is the badger directory.
	Path string `yaml:"path"`
	// DSN is the sqlite data source name.
	DSN string `yaml:"dsn"`
}

// QdrantConfig contains connection details for a Qdrant collection.
type QdrantConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key,omitempty"`
	Collection string        `yaml:"collection"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// IndexConfig selects the embedding index.
type IndexConfig struct {
	Driver string       `yaml:"driver"`
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// CacheConfig sizes the embedding cache. Size 0 disables it.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// AIConfig mirrors ai.Config plus the embedding cache.
type AIConfig struct {
	Provider        string      `yaml:"provider"`
	EmbeddingHost   string      `yaml:"embedding_host"`
	GenerationHost  string      `yaml:"generation_host"`
	EmbeddingModel  string      `yaml:"embedding_model"`
	GenerationModel string      `yaml:"generation_model"`
	APIKey          string      `yaml:"api_key,omitempty"`
	Temperature     float64     `yaml:"temperature"`
	Cache           CacheConfig `yaml:"cache"`
}

// S3Config locates the archive bucket.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	PathStyle       bool   `yaml:"path_style"`
}

// ArchiveConfig selects where raw uploads are kept. An empty type keeps none.
type ArchiveConfig struct {
	Type string   `yaml:"type"`
	Dir  string   `yaml:"dir"`
	S3   S3Config `yaml:"s3"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	ChunkSize    int           `yaml:"chunk_size"`
	ChunkOverlap int           `yaml:"chunk_overlap"`
	Workers      int           `yaml:"workers"`
	Archive      ArchiveConfig `yaml:"archive"`
}

// ChatConfig tunes retrieval and answering.
type ChatConfig struct {
	K            int     `yaml:"k"`
	MinScore     float32 `yaml:"min_score"`
	Instructions string  `yaml:"instructions,omitempty"`
}

// AuditConfig configures audit fan-out. The ledger always receives entries.
type AuditConfig struct {
	Async   bool   `yaml:"async"`
	Workers int    `yaml:"workers"`
	AMQPURL string `yaml:"amqp_url,omitempty"`
	Queue   string `yaml:"queue"`
}

// WorkerConfig configures the maintenance worker.
type WorkerConfig struct {
	SweepSchedule string        `yaml:"sweep_schedule"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	MetricsAddr   string        `yaml:"metrics_addr"`
}

// Config is the root configuration document.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Index   IndexConfig   `yaml:"index"`
	AI      AIConfig      `yaml:"ai"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Chat    ChatConfig    `yaml:"chat"`
	Audit   AuditConfig   `yaml:"audit"`
	Worker  WorkerConfig  `yaml:"worker"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Storage: StorageConfig{
			Driver: DriverBadger,
			Path:   defaultDataDir,
			DSN:    "docent.db",
		},
		Index: IndexConfig{
			Driver: DriverBadger,
			Qdrant: QdrantConfig{
				URL:        "http://localhost:6333",
				Collection: "documents",
				Timeout:    30 * time.Second,
			},
		},
		AI: AIConfig{
			Provider:        aiDefaults.Provider,
			EmbeddingHost:   aiDefaults.EmbeddingHost,
			GenerationHost:  aiDefaults.GenerationHost,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			GenerationModel: aiDefaults.GenerationModel,
			Temperature:     aiDefaults.Temperature,
			Cache:           CacheConfig{Size: 1024, TTL: 10 * time.Minute},
		},
		Ingest: IngestConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			Workers:      4,
		},
		Chat:  ChatConfig{K: 4},
		Audit: AuditConfig{Workers: 4, Queue: "docent.audit"},
		Worker: WorkerConfig{
			SweepSchedule: "@every 5m",
			StaleAfter:    30 * time.Minute,
			MetricsAddr:   defaultMetricsAddr,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path skips the
// file. Secrets missing from the file are taken from the environment after
// loading envFile; a missing envFile is not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
		}
	}

	if envFile != "" {
		// Variables already set in the process win over the file
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.AI.APIKey == "" {
		switch c.AI.Provider {
		case ai.ProviderGemini:
			c.AI.APIKey = firstEnv(EnvAPIKey, EnvGeminiKey)
		default:
			c.AI.APIKey = firstEnv(EnvAPIKey, EnvOpenAIKey)
		}
	}
	if c.Index.Qdrant.APIKey == "" {
		c.Index.Qdrant.APIKey = os.Getenv(EnvQdrantKey)
	}
	if c.Ingest.Archive.S3.AccessKeyID == "" {
		c.Ingest.Archive.S3.AccessKeyID = os.Getenv(EnvAWSAccessKey)
	}
	if c.Ingest.Archive.S3.SecretAccessKey == "" {
		c.Ingest.Archive.S3.SecretAccessKey = os.Getenv(EnvAWSSecretKey)
	}
	if c.Audit.AMQPURL == "" {
		c.Audit.AMQPURL = os.Getenv(EnvAMQPURL)
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks driver names and numeric ranges.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverBadger:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for badger", ErrInvalidConfig)
		}
	case DriverSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn is required for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	switch c.Index.Driver {
	case DriverBadger:
		if c.Storage.Driver != DriverBadger {
			return fmt.Errorf("%w: the badger index requires badger storage", ErrInvalidConfig)
		}
	case DriverQdrant:
		if c.Index.Qdrant.URL == "" {
			return fmt.Errorf("%w: index.qdrant.url is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown index driver %q", ErrInvalidConfig, c.Index.Driver)
	}

	switch c.Ingest.Archive.Type {
	case blob.TypeNone, blob.TypeLocal, blob.TypeS3:
	default:
		return fmt.Errorf("%w: unknown archive type %q", ErrInvalidConfig, c.Ingest.Archive.Type)
	}

	if c.Ingest.ChunkSize <= 0 || c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, chunk_size)", ErrInvalidConfig)
	}
	if c.AI.Cache.Size < 0 {
		return fmt.Errorf("%w: ai.cache.size must not be negative", ErrInvalidConfig)
	}
	if c.AI.Provider == ProviderMock {
		return nil
	}
	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AIConfig converts the ai section for the provider constructors.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.AI.Provider),
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGenerationHost(c.AI.GenerationHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGenerationModel(c.AI.GenerationModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithTemperature(c.AI.Temperature),
	)
}

// BlobConfig converts the archive section for blob.New.
func (c *Config) BlobConfig() blob.Config {
	a := c.Ingest.Archive
	return blob.Config{
		Type: a.Type,
		Dir:  a.Dir,
		S3: blob.S3Config{
			Endpoint:        a.S3.Endpoint,
			Region:          a.S3.Region,
			Bucket:          a.S3.Bucket,
			Prefix:          a.S3.Prefix,
			AccessKeyID:     a.S3.AccessKeyID,
			SecretAccessKey: a.S3.SecretAccessKey,
			PathStyle:       a.S3.PathStyle,
		},
	}
}

// Redacted returns a copy with every secret replaced.
func (c *Config) Redacted() *Config {
	out := *c
	for _, secret := range []*string{
		&out.AI.APIKey,
		&out.Index.Qdrant.APIKey,
		&out.Ingest.Archive.S3.AccessKeyID,
		&out.Ingest.Archive.S3.SecretAccessKey,
		&out.Audit.AMQPURL,
	} {
		if *secret != "" {
			*secret = redacted
		}
	}
	return &out
}

// Write encodes cfg as YAML.
func Write(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
