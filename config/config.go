// Package config loads pathway settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "PATHWAY_CONFIG"
	openAIKeyEnv   = "OPENAI_API_KEY"
	providerEnv    = "PATHWAY_LLM_PROVIDER"
	modelEnv       = "PATHWAY_MODEL"
	databaseURLEnv = "DATABASE_URL"
	bucketEnv      = "PATHWAY_S3_BUCKET"
	logLevelEnv    = "PATHWAY_LOG_LEVEL"
	awsRegionEnv   = "AWS_REGION"
)

// Supported backends.
const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"

	BackendMemory   = "memory"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

// Config holds high-level settings required across the application.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Extract ExtractConfig `yaml:"extract"`
	Breaker BreakerConfig `yaml:"breaker"`
	Limit   LimitConfig   `yaml:"limit"`
	Storage StorageConfig `yaml:"storage"`
	Chat    ChatConfig    `yaml:"chat"`
	Log     LogConfig     `yaml:"log"`
}

// LLMConfig selects and configures the model backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"apiKey"`
	BaseURL     string  `yaml:"baseUrl"`
	Region      string  `yaml:"region"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
	Language    string  `yaml:"language"`
}

// ExtractConfig tunes structured extraction.
type ExtractConfig struct {
	RetryLimit int `yaml:"retryLimit"`
	MaxModules int `yaml:"maxModules"`
	MaxTopics  int `yaml:"maxTopics"`
}

// BreakerConfig configures the circuit breaker in front of the model.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"maxFailures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LimitConfig caps the rate of model calls. Zero RequestsPerMin disables it.
type LimitConfig struct {
	RequestsPerMin int `yaml:"requestsPerMin"`
	BurstSize      int `yaml:"burstSize"`
}

// StorageConfig selects where explorations and notes are kept.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	Bucket      string `yaml:"bucket"`
	DatabaseURL string `yaml:"databaseUrl"`
}

// ChatConfig selects where tutor conversations are kept.
type ChatConfig struct {
	Backend     string `yaml:"backend"`
	ReturnLimit int    `yaml:"returnLimit"`
	MaxMessages int    `yaml:"maxMessages"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load applies, in order: defaults, the YAML file named by PATHWAY_CONFIG
// (if set) and environment overrides.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: cannot read %s: %w", path, err)
	}
	// Fields missing from the file keep their defaults.
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: cannot parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(providerEnv); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(modelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(awsRegionEnv); v != "" {
		c.LLM.Region = v
	}
	if v := os.Getenv(databaseURLEnv); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv(bucketEnv); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Log.Level = v
	}
}

// Validate reports every missing or inconsistent setting.
func (c Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.apiKey is required for provider %s (set %s)", ProviderOpenAI, openAIKeyEnv))
		}
	case ProviderBedrock:
		if c.LLM.Region == "" {
			errs = append(errs, fmt.Errorf("llm.region is required for provider %s (set %s)", ProviderBedrock, awsRegionEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of %s, %s", c.LLM.Provider, ProviderOpenAI, ProviderBedrock))
	}

	if c.Extract.RetryLimit < 1 {
		errs = append(errs, fmt.Errorf("extract.retryLimit must be positive, got %d", c.Extract.RetryLimit))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendS3:
		if c.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage.bucket is required for backend %s (set %s)", BackendS3, bucketEnv))
		}
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("storage.databaseUrl is required for backend %s (set %s)", BackendPostgres, databaseURLEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of %s, %s, %s", c.Storage.Backend, BackendMemory, BackendS3, BackendPostgres))
	}

	switch c.Chat.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("storage.databaseUrl is required for chat backend %s (set %s)", BackendPostgres, databaseURLEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("chat.backend %q is not one of %s, %s", c.Chat.Backend, BackendMemory, BackendPostgres))
	}

	if c.Limit.RequestsPerMin < 0 || c.Limit.BurstSize < 0 {
		errs = append(errs, fmt.Errorf("limit values must not be negative"))
	}

	return errors.Join(errs...)
}

func defaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Region:      "us-east-1",
			Temperature: 0.3,
			MaxTokens:   2000,
			Language:    "English",
		},
		Extract: ExtractConfig{RetryLimit: 5, MaxModules: 6, MaxTopics: 8},
		Breaker: BreakerConfig{Enabled: true, MaxFailures: 5, Timeout: 30 * time.Second},
		Limit:   LimitConfig{BurstSize: 1},
		Storage: StorageConfig{Backend: BackendMemory},
		Chat:    ChatConfig{Backend: BackendMemory, ReturnLimit: 20, MaxMessages: 100},
		Log:     LogConfig{Level: "info"},
	}
}
