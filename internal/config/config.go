package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

const (
	defaultMaxUploadSize   = 10 * 1024 * 1024
	defaultAnalysisTimeout = 1800
	defaultQueryTimeout    = 120
	defaultAnalysisWorkers = 4
	defaultStaleSweepSpec  = "*/10 * * * *"
	defaultCacheSize       = 1024
	defaultCacheTTLSeconds = 600
	defaultInterpreter     = "python3"
)

type Config struct {
	Port            int              `json:"port"`
	LogConfig       logger.LogConfig `json:"log_config"`
	Database        DatabaseConfig   `json:"database"`
	Upload          UploadConfig     `json:"upload"`
	WorkDir         string           `json:"work_dir"`
	AnalysisEngine  EngineConfig     `json:"analysis_engine"`
	QueryEngine     EngineConfig     `json:"query_engine"`
	FailOnStderr    *bool            `json:"fail_on_stderr"`
	AnalysisWorkers int              `json:"analysis_workers"`
	StaleSweep      StaleSweepConfig `json:"stale_sweep"`
	DocumentCache   CacheConfig      `json:"document_cache"`
	Archive         *FileStoreConfig `json:"archive"`
	CORSOrigins     []string         `json:"cors_origins"`
	RateLimitMs     int64            `json:"rate_limit_ms"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type UploadConfig struct {
	Dir          string   `json:"dir"`
	MaxSize      int64    `json:"max_size"`
	AllowedTypes []string `json:"allowed_types"`
}

// EngineConfig describes an external job. Positional inputs are appended after Args.
type EngineConfig struct {
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	Env            []string `json:"env"`
	TimeoutSeconds int64    `json:"timeout_seconds"`
}

type StaleSweepConfig struct {
	Spec          string `json:"spec"`
	MaxAgeSeconds int64  `json:"max_age_seconds"`
	Disabled      bool   `json:"disabled"`
}

type CacheConfig struct {
	Size       int   `json:"size"`
	TTLSeconds int64 `json:"ttl_seconds"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.DSN == "" && cfg.Database.Host == "" {
			return fmt.Errorf("database.dsn or database.host is required")
		}
		if cfg.Database.Port == 0 {
			cfg.Database.Port = 5432
		}
	case "sqlite":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for sqlite")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite")
	}
	if cfg.Upload.Dir == "" {
		return fmt.Errorf("upload.dir is required")
	}
	if cfg.Upload.MaxSize <= 0 {
		cfg.Upload.MaxSize = defaultMaxUploadSize
	}
	if len(cfg.Upload.AllowedTypes) == 0 {
		cfg.Upload.AllowedTypes = []string{"application/pdf"}
	}
	if cfg.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	if len(cfg.AnalysisEngine.Args) == 0 && cfg.AnalysisEngine.Command == "" {
		return fmt.Errorf("analysis_engine.command is required")
	}
	if len(cfg.QueryEngine.Args) == 0 && cfg.QueryEngine.Command == "" {
		return fmt.Errorf("query_engine.command is required")
	}
	if cfg.AnalysisEngine.Command == "" {
		cfg.AnalysisEngine.Command = defaultInterpreter
	}
	if cfg.QueryEngine.Command == "" {
		cfg.QueryEngine.Command = defaultInterpreter
	}
	if cfg.AnalysisEngine.TimeoutSeconds == 0 {
		cfg.AnalysisEngine.TimeoutSeconds = defaultAnalysisTimeout
	}
	if cfg.QueryEngine.TimeoutSeconds == 0 {
		cfg.QueryEngine.TimeoutSeconds = defaultQueryTimeout
	}
	if cfg.FailOnStderr == nil {
		v := true
		cfg.FailOnStderr = &v
	}
	if cfg.AnalysisWorkers <= 0 {
		cfg.AnalysisWorkers = defaultAnalysisWorkers
	}
	if cfg.StaleSweep.Spec == "" {
		cfg.StaleSweep.Spec = defaultStaleSweepSpec
	}
	if cfg.StaleSweep.MaxAgeSeconds <= 0 {
		cfg.StaleSweep.MaxAgeSeconds = 2 * cfg.AnalysisEngine.TimeoutSeconds
		if cfg.StaleSweep.MaxAgeSeconds <= 0 {
			cfg.StaleSweep.MaxAgeSeconds = 2 * defaultAnalysisTimeout
		}
	}
	if cfg.DocumentCache.Size == 0 {
		cfg.DocumentCache.Size = defaultCacheSize
	}
	if cfg.DocumentCache.TTLSeconds == 0 {
		cfg.DocumentCache.TTLSeconds = defaultCacheTTLSeconds
	}
	if cfg.RateLimitMs < 0 {
		return fmt.Errorf("rate_limit_ms must not be negative")
	}
	if cfg.Archive != nil {
		cfg.Archive.Type = strings.ToLower(strings.TrimSpace(cfg.Archive.Type))
		if cfg.Archive.Type == "" {
			return fmt.Errorf("archive.type is required when archive is set")
		}
	}
	return nil
}
