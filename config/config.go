package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	RAG       RAGConfig       `mapstructure:"rag"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Research  ResearchConfig  `mapstructure:"research"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen   string `mapstructure:"listen"`
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// LLMConfig contains the language-model provider configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SearchConfig contains the web search collaborator configuration
type SearchConfig struct {
	Provider string        `mapstructure:"provider"` // serper or brave
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	FetchTop int           `mapstructure:"fetch_top"` // deep-dive page expansion count
}

// RAGConfig contains the internal document index configuration
type RAGConfig struct {
	IndexPath string        `mapstructure:"index_path"` // empty = in-memory only
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects and configures the plan store backend
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"` // memory, redis or postgres
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles a postgres connection string from either the URL or the
// discrete fields.
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

// ResearchConfig tunes the synthesis and conflict engine. Thresholds are
// configuration, not hard-coded law.
type ResearchConfig struct {
	QuickCap            int     `mapstructure:"quick_cap"`
	StandardCap         int     `mapstructure:"standard_cap"`
	DeepCap             int     `mapstructure:"deep_cap"`
	DedupThreshold      float64 `mapstructure:"dedup_threshold"`
	TopicMatchThreshold float64 `mapstructure:"topic_match_threshold"`
	MaxDeepDiveAttempts int     `mapstructure:"max_deep_dive_attempts"`
	HistoryWindow       int     `mapstructure:"history_window"`
}

func (r ResearchConfig) Validate() error {
	if r.QuickCap <= 0 || r.StandardCap <= 0 || r.DeepCap <= 0 {
		return fmt.Errorf("research caps must be > 0")
	}
	if r.DedupThreshold <= 0 || r.DedupThreshold > 1 {
		return fmt.Errorf("research.dedup_threshold must be in (0,1]")
	}
	if r.TopicMatchThreshold <= 0 || r.TopicMatchThreshold > 1 {
		return fmt.Errorf("research.topic_match_threshold must be in (0,1]")
	}
	if r.MaxDeepDiveAttempts <= 0 {
		return fmt.Errorf("research.max_deep_dive_attempts must be > 0")
	}
	return nil
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from file and environment. Panics on a
// broken config file so misconfiguration is caught at startup, matching
// the rest of the service's fail-fast init.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("general.listen", ":10080")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.timeout", 60*time.Second)
	viper.SetDefault("search.provider", "serper")
	viper.SetDefault("search.timeout", 10*time.Second)
	viper.SetDefault("search.fetch_top", 2)
	viper.SetDefault("rag.timeout", 5*time.Second)
	viper.SetDefault("storage.backend", "memory")
	viper.SetDefault("storage.redis.timeout", 5*time.Second)
	viper.SetDefault("research.quick_cap", 6)
	viper.SetDefault("research.standard_cap", 14)
	viper.SetDefault("research.deep_cap", 24)
	viper.SetDefault("research.dedup_threshold", 0.8)
	viper.SetDefault("research.topic_match_threshold", 0.5)
	viper.SetDefault("research.max_deep_dive_attempts", 3)
	viper.SetDefault("research.history_window", 12)
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("PLANSCRIBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional; defaults + env are enough to run
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Research.Validate(); err != nil {
		panic(err)
	}

	return &config
}
