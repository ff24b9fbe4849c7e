// Package config provides configuration loading for medassistd.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the daemon and CLI.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	LLM        LLMConfig        `koanf:"llm"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Knowledge  KnowledgeConfig  `koanf:"knowledge"`
	Database   DatabaseConfig   `koanf:"database"`
	Session    SessionConfig    `koanf:"session"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Notify     NotifyConfig     `koanf:"notify"`
	Triage     TriageConfig     `koanf:"triage"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig controls log output. The logging package translates these
// primitive fields into its own runtime config.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Sampling bool   `koanf:"sampling"`
	Redact   bool   `koanf:"redact"`
	OTEL     bool   `koanf:"otel"`
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Insecure       bool    `koanf:"insecure"`
	SampleRate     float64 `koanf:"sample_rate"`
	ServiceName    string  `koanf:"service_name"`
	ServiceVersion string  `koanf:"service_version"`
}

// LLMConfig points at the OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL           string  `koanf:"base_url"`
	APIKey            Secret  `koanf:"api_key"`
	Model             string  `koanf:"model"`
	Temperature       float64 `koanf:"temperature"`
	MaxTokens         int     `koanf:"max_tokens"`
	MaxToolIterations int     `koanf:"max_tool_iterations"`
}

// EmbeddingsConfig points at the embedding endpoint used by the knowledge base.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  Secret `koanf:"api_key"`
	Model   string `koanf:"model"`
}

// KnowledgeConfig selects and tunes the knowledge-base backend.
type KnowledgeConfig struct {
	Backend      string `koanf:"backend"` // "chromem" (embedded) or "qdrant"
	Path         string `koanf:"path"`    // chromem persistence directory
	Compress     bool   `koanf:"compress"`
	Collection   string `koanf:"collection"`
	QdrantURL    string `koanf:"qdrant_url"`
	TopK         int    `koanf:"top_k"`
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
}

// DatabaseConfig holds the records-store DSN. Empty means in-memory.
type DatabaseConfig struct {
	URL Secret `koanf:"url"`
}

// SessionConfig bounds conversation memory.
type SessionConfig struct {
	MaxTurns        int      `koanf:"max_turns"`
	TTL             Duration `koanf:"ttl"`
	JanitorInterval Duration `koanf:"janitor_interval"`
}

// SchedulerConfig controls the reminder sweep loop.
type SchedulerConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Interval Duration `koanf:"interval"`
}

// NotifyConfig controls external reminder delivery. Empty URL means
// deliveries are logged only.
type NotifyConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// TriageConfig locates the rule catalog.
type TriageConfig struct {
	RulesPath string `koanf:"rules_path"`
}

// defaultYAML seeds the loader before file and environment overrides.
// It doubles as the reference for every supported key.
const defaultYAML = `
server:
  host: 0.0.0.0
  port: 8080
  read_timeout: 30s
  write_timeout: 60s
  shutdown_timeout: 10s

logging:
  level: info
  format: json
  sampling: true
  redact: true
  otel: false

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0
  service_name: medassistd
  service_version: dev

llm:
  base_url: https://api.openai.com/v1
  model: gpt-4o-mini
  temperature: 0.7
  max_tokens: 1024
  max_tool_iterations: 5

embeddings:
  base_url: https://api.openai.com/v1
  model: text-embedding-3-small

knowledge:
  backend: chromem
  path: ./data/knowledge
  compress: true
  collection: medical_knowledge
  qdrant_url: http://localhost:6333
  top_k: 4
  chunk_size: 1200
  chunk_overlap: 200

database:
  url: ""

session:
  max_turns: 50
  ttl: 30m
  janitor_interval: 5m

scheduler:
  enabled: true
  interval: 1m

notify:
  nats_url: ""
  subject_prefix: medassist.reminders

triage:
  rules_path: ./configs/rules.json
`

// Validate checks the configuration for errors that should stop startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint required when telemetry enabled")
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry.sample_rate must be in [0,1], got %v", c.Telemetry.SampleRate)
		}
	}

	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url required")
	}
	if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		return fmt.Errorf("llm.base_url invalid: %w", err)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0,2], got %v", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.MaxToolIterations < 1 {
		return fmt.Errorf("llm.max_tool_iterations must be >= 1, got %d", c.LLM.MaxToolIterations)
	}

	switch c.Knowledge.Backend {
	case "chromem":
		if c.Knowledge.Path == "" {
			return fmt.Errorf("knowledge.path required for chromem backend")
		}
	case "qdrant":
		if c.Knowledge.QdrantURL == "" {
			return fmt.Errorf("knowledge.qdrant_url required for qdrant backend")
		}
		if _, err := url.Parse(c.Knowledge.QdrantURL); err != nil {
			return fmt.Errorf("knowledge.qdrant_url invalid: %w", err)
		}
	default:
		return fmt.Errorf("knowledge.backend must be 'chromem' or 'qdrant', got %q", c.Knowledge.Backend)
	}
	if c.Knowledge.Collection == "" {
		return fmt.Errorf("knowledge.collection required")
	}
	if c.Knowledge.TopK < 1 {
		return fmt.Errorf("knowledge.top_k must be >= 1, got %d", c.Knowledge.TopK)
	}
	if c.Knowledge.ChunkSize <= 0 {
		return fmt.Errorf("knowledge.chunk_size must be > 0, got %d", c.Knowledge.ChunkSize)
	}
	if c.Knowledge.ChunkOverlap < 0 || c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		return fmt.Errorf("knowledge.chunk_overlap must be in [0, chunk_size), got %d", c.Knowledge.ChunkOverlap)
	}

	if c.Session.MaxTurns < 2 {
		return fmt.Errorf("session.max_turns must be >= 2, got %d", c.Session.MaxTurns)
	}
	if c.Session.TTL.Duration() <= 0 {
		return fmt.Errorf("session.ttl must be > 0")
	}
	if c.Session.JanitorInterval.Duration() <= 0 {
		return fmt.Errorf("session.janitor_interval must be > 0")
	}

	if c.Scheduler.Enabled && c.Scheduler.Interval.Duration() < time.Second {
		return fmt.Errorf("scheduler.interval must be >= 1s, got %s", c.Scheduler.Interval.Duration())
	}

	if c.Notify.NATSURL != "" {
		if _, err := url.Parse(c.Notify.NATSURL); err != nil {
			return fmt.Errorf("notify.nats_url invalid: %w", err)
		}
		if c.Notify.SubjectPrefix == "" {
			return fmt.Errorf("notify.subject_prefix required when notify.nats_url set")
		}
	}

	if c.Triage.RulesPath == "" {
		return fmt.Errorf("triage.rules_path required")
	}

	return nil
}
