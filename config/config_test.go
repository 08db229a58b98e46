package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{configPathEnv, openAIKeyEnv, providerEnv, modelEnv, databaseURLEnv, bucketEnv, logLevelEnv, awsRegionEnv} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Provider != ProviderOpenAI || cfg.Extract.RetryLimit != 5 || cfg.Storage.Backend != BackendMemory {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("breaker timeout = %v", cfg.Breaker.Timeout)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "pathway.yaml")
	yaml := `
llm:
  provider: bedrock
  model: anthropic.claude-3-haiku-20240307-v1:0
extract:
  retryLimit: 3
breaker:
  timeout: 1m30s
storage:
  backend: s3
  bucket: from-file
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(bucketEnv, "from-env")
	t.Setenv(logLevelEnv, "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"provider", cfg.LLM.Provider, ProviderBedrock},
		{"model", cfg.LLM.Model, "anthropic.claude-3-haiku-20240307-v1:0"},
		{"retry limit", cfg.Extract.RetryLimit, 3},
		{"max topics kept", cfg.Extract.MaxTopics, 8},
		{"breaker timeout", cfg.Breaker.Timeout, 90 * time.Second},
		{"bucket from env", cfg.Storage.Bucket, "from-env"},
		{"log level from env", cfg.Log.Level, "warn"},
		{"chat default kept", cfg.Chat.Backend, BackendMemory},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}

	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected read error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name:   "valid openai",
			mutate: func(c *Config) { c.LLM.APIKey = "sk" },
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) {},
			wantErr: []string{"llm.apiKey"},
		},
		{
			name: "unknown provider and backend",
			mutate: func(c *Config) {
				c.LLM.Provider = "local"
				c.Storage.Backend = "disk"
			},
			wantErr: []string{"llm.provider", "storage.backend"},
		},
		{
			name: "postgres without url",
			mutate: func(c *Config) {
				c.LLM.APIKey = "sk"
				c.Storage.Backend = BackendPostgres
				c.Chat.Backend = BackendPostgres
			},
			wantErr: []string{"storage.databaseUrl is required for backend", "chat backend"},
		},
		{
			name: "zero retry limit",
			mutate: func(c *Config) {
				c.LLM.APIKey = "sk"
				c.Extract.RetryLimit = 0
			},
			wantErr: []string{"extract.retryLimit"},
		},
		{
			name: "negative rate limit",
			mutate: func(c *Config) {
				c.LLM.APIKey = "sk"
				c.Limit.RequestsPerMin = -1
			},
			wantErr: []string{"limit values"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q missing %q", err, want)
				}
			}
		})
	}
}
