package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig selects the job record store backend. Driver is either
// "postgres" (pgx) or "sqlite" (single-node and dev deployments); the
// rest of the system only ever sees the shared database/sql surface.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	Enabled         bool   `yaml:"enabled"`
	InitialAdminKey string `yaml:"initialAdminKey"`
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

type WorkerConfig struct {
	MaxConcurrentConversions int `yaml:"maxConcurrentConversions"`
}

// StorageConfig controls where uploaded artifacts live on local disk
// and what the intake path accepts.
type StorageConfig struct {
	UploadDir            string   `yaml:"uploadDir"`
	MaxUploadBytes       int64    `yaml:"maxUploadBytes"`
	AllowedSourceFormats []string `yaml:"allowedSourceFormats"`
}

// ConversionConfig holds the delay policy for the simulated conversion
// lifecycle. The numeric magnitudes are policy, not contract; batch
// members are staggered by index*BatchStaggerMs on top of the
// quality-dependent base delay.
type ConversionConfig struct {
	HighDelayMs    int `yaml:"highDelayMs"`
	MediumDelayMs  int `yaml:"mediumDelayMs"`
	LowDelayMs     int `yaml:"lowDelayMs"`
	BatchStaggerMs int `yaml:"batchStaggerMs"`
	MaxBatchFiles  int `yaml:"maxBatchFiles"`
}

// ToolsConfig points at the YAML tool catalog and the directory holding
// the static HTML pages the catalog references.
type ToolsConfig struct {
	CatalogPath string `yaml:"catalogPath"`
	PagesDir    string `yaml:"pagesDir"`
}

// JobTTLConfig controls retention of terminal conversion jobs in days.
type JobTTLConfig struct {
	DefaultDays   int `yaml:"defaultDays"`
	CompletedDays int `yaml:"completedDays"`
	FailedDays    int `yaml:"failedDays"`
}

// RetentionConfig controls TTL-like deletion of old jobs and their
// stored artifacts so that disk and database do not grow without bound.
type RetentionConfig struct {
	Enabled                bool         `yaml:"enabled"`
	CleanupIntervalMinutes int          `yaml:"cleanupIntervalMinutes"`
	Jobs                   JobTTLConfig `yaml:"jobs"`
	DeleteArtifacts        bool         `yaml:"deleteArtifacts"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Worker     WorkerConfig     `yaml:"worker"`
	Storage    StorageConfig    `yaml:"storage"`
	Conversion ConversionConfig `yaml:"conversion"`
	Tools      ToolsConfig      `yaml:"tools"`
	Retention  RetentionConfig  `yaml:"retention"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return &cfg
}
