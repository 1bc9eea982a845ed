package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxTokensCap   int64   `yaml:"max_tokens_cap" mapstructure:"max_tokens_cap"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// StorageConfig configures the document object store.
type StorageConfig struct {
	Backend string    `yaml:"backend" mapstructure:"backend"` // "local" or "ftp"
	Bucket  string    `yaml:"bucket" mapstructure:"bucket"`
	Root    string    `yaml:"root" mapstructure:"root"` // local backend root dir
	FTP     FTPConfig `yaml:"ftp" mapstructure:"ftp"`
}

// FTPConfig holds FTP object store credentials.
type FTPConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Root     string `yaml:"root" mapstructure:"root"`
	TimeoutS int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// IngestConfig configures the extraction pipeline.
type IngestConfig struct {
	InputDir     string `yaml:"input_dir" mapstructure:"input_dir"`
	OutputDir    string `yaml:"output_dir" mapstructure:"output_dir"`
	ChunkSize    int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	MaxAttempts  int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	SnippetLimit int    `yaml:"snippet_limit" mapstructure:"snippet_limit"`
	PromptsFile  string `yaml:"prompts_file" mapstructure:"prompts_file"`
}

// ImportConfig configures the database import stage.
type ImportConfig struct {
	EmailDomain string `yaml:"email_domain" mapstructure:"email_domain"`
}

// RedisConfig configures the run lock backend. Leave Addr empty to run
// without locking.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	LockTTLS int    `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALINGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.max_tokens_cap", 8192)
	v.SetDefault("anthropic.requests_per_sec", 2)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.bucket", "deal-documents")
	v.SetDefault("storage.root", "./storage")
	v.SetDefault("storage.ftp.timeout_secs", 30)
	v.SetDefault("ingest.input_dir", "./deals")
	v.SetDefault("ingest.output_dir", "./aggregated")
	v.SetDefault("ingest.chunk_size", 4)
	v.SetDefault("ingest.max_attempts", 2)
	v.SetDefault("ingest.snippet_limit", 800)
	v.SetDefault("import.email_domain", "fastlease.local")
	v.SetDefault("redis.lock_ttl_secs", 600)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
