package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NethermindEth/eternalgov/orchestrator"
	"github.com/NethermindEth/eternalgov/reasoning"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel    string                    `mapstructure:"log_level"`
	DataDir     string                    `mapstructure:"data_dir"`
	DAORegistry string                    `mapstructure:"dao_registry"`
	Agent       AgentConfig               `mapstructure:"agent"`
	Storage     StorageConfig             `mapstructure:"storage"`
	NATS        NATSConfig                `mapstructure:"nats"`
	API         APIConfig                 `mapstructure:"api"`
	LLM         LLMConfig                 `mapstructure:"llm"`
	Ledger      LedgerConfig              `mapstructure:"ledger"`
	Ingest      IngestConfig              `mapstructure:"ingest"`
	Reasoning   ReasoningConfig           `mapstructure:"reasoning"`
	Voting      orchestrator.VotingConfig `mapstructure:"voting"`

	// DAOs is loaded from DAORegistry, or the built-in registry
	DAOs *Registry `mapstructure:"-"`
}

type AgentConfig struct {
	ID         string `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	MembaseID  string `mapstructure:"membase_id"`
	PrivateKey string `mapstructure:"private_key"`
}

type StorageConfig struct {
	// Backend is "memory" or "badger"
	Backend    string        `mapstructure:"backend"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

type LLMConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

type LedgerConfig struct {
	DSN string `mapstructure:"dsn"`
}

type IngestConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
	Files       []string      `mapstructure:"files"`
	Samples     bool          `mapstructure:"samples"`
}

type ReasoningConfig struct {
	Weights        reasoning.Weights `mapstructure:"weights"`
	MinConfidence  float64           `mapstructure:"min_confidence"`
	MaxConfidence  float64           `mapstructure:"max_confidence"`
	BlendAlpha     float64           `mapstructure:"blend_alpha"`
	AccuracyWindow int               `mapstructure:"accuracy_window"`
	HistoryLimit   int               `mapstructure:"history_limit"`
}

func setDefaults(v *viper.Viper) {
	rc := reasoning.DefaultConfig()

	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("dao_registry", "")
	v.SetDefault("agent.id", "")
	v.SetDefault("agent.name", "EternalGov")
	v.SetDefault("agent.membase_id", "EternalGov_delegate")
	v.SetDefault("agent.private_key", "")
	v.SetDefault("storage.backend", "badger")
	v.SetDefault("storage.retries", 3)
	v.SetDefault("storage.retry_delay", 200*time.Millisecond)
	v.SetDefault("nats.url", "")
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("ingest.timeout", 30*time.Second)
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.files", []string{})
	v.SetDefault("ingest.samples", true)
	v.SetDefault("reasoning.weights.sentiment", rc.Weights.Sentiment)
	v.SetDefault("reasoning.weights.preference", rc.Weights.Preference)
	v.SetDefault("reasoning.weights.history", rc.Weights.History)
	v.SetDefault("reasoning.weights.model", rc.Weights.Model)
	v.SetDefault("reasoning.min_confidence", rc.MinConfidence)
	v.SetDefault("reasoning.max_confidence", rc.MaxConfidence)
	v.SetDefault("reasoning.blend_alpha", 0.3)
	v.SetDefault("reasoning.accuracy_window", 20)
	v.SetDefault("reasoning.history_limit", rc.HistoryLimit)
	v.SetDefault("voting.autonomous", false)
	v.SetDefault("voting.confidence_threshold", 0.5)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "eternalgov")
	}
	return filepath.Join(home, ".eternalgov")
}

// Load reads .env, then eternalgov.yaml (or the file at path), then
// ETERNALGOV_* environment variables, and finally the DAO registry.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("eternalgov")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "eternalgov"))
		}
	}

	v.SetEnvPrefix("ETERNALGOV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	registry := DefaultRegistry()
	if cfg.DAORegistry != "" {
		loaded, err := LoadRegistry(cfg.DAORegistry)
		if err != nil {
			return nil, err
		}
		registry = loaded
	}
	cfg.DAOs = registry

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("config: storage.backend %q must be memory or badger", c.Storage.Backend)
	}
	if c.Storage.Backend == "badger" && c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required for the badger backend")
	}
	if c.Storage.Retries < 0 {
		return fmt.Errorf("config: storage.retries must not be negative")
	}
	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("config: ingest.concurrency must be at least 1")
	}
	if c.Ingest.Timeout <= 0 {
		return fmt.Errorf("config: ingest.timeout must be positive")
	}
	w := c.Reasoning.Weights
	if w.Sentiment < 0 || w.Preference < 0 || w.History < 0 || w.Model < 0 {
		return fmt.Errorf("config: reasoning weights must not be negative")
	}
	if w.Sentiment+w.Preference+w.History+w.Model == 0 {
		return fmt.Errorf("config: at least one reasoning weight must be positive")
	}
	if c.Reasoning.MinConfidence < 0 || c.Reasoning.MaxConfidence > 1 || c.Reasoning.MinConfidence > c.Reasoning.MaxConfidence {
		return fmt.Errorf("config: reasoning confidence bounds must satisfy 0 <= min <= max <= 1")
	}
	if c.Reasoning.BlendAlpha <= 0 || c.Reasoning.BlendAlpha > 1 {
		return fmt.Errorf("config: reasoning.blend_alpha must be within (0, 1]")
	}
	if c.Voting.ConfidenceThreshold < 0 || c.Voting.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: voting.confidence_threshold must be within [0, 1]")
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return fmt.Errorf("config: llm.enabled requires llm.api_key or OPENAI_API_KEY")
	}
	if c.DAOs != nil {
		if err := c.DAOs.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LedgerDSN returns the configured ledger DSN, defaulting to a file in the data dir
func (c *Config) LedgerDSN() string {
	if c.Ledger.DSN != "" {
		return c.Ledger.DSN
	}
	if c.Storage.Backend == "memory" {
		return "file::memory:"
	}
	return filepath.Join(c.DataDir, "ledger.db")
}

// EngineConfig builds the engine configuration including per-DAO policies
func (c *Config) EngineConfig() reasoning.Config {
	rc := reasoning.DefaultConfig()
	rc.Weights = c.Reasoning.Weights
	rc.MinConfidence = c.Reasoning.MinConfidence
	rc.MaxConfidence = c.Reasoning.MaxConfidence
	rc.HistoryLimit = c.Reasoning.HistoryLimit
	if c.DAOs != nil {
		rc.Policies = c.DAOs.Policies()
	}
	return rc
}
