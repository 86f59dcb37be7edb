// Package config provides environment-driven application configuration plus
// the YAML engine manifest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/veridata-io/veridata/pkg/logger"
)

// Engine kinds understood by the manifest.
const (
	KindSQLite   = "sqlite"
	KindFile     = "file"
	KindPostgres = "postgres"
)

// EngineConfig declares one engine of the manifest.
type EngineConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Path is the database file for sqlite engines (empty = in-memory).
	Path string `yaml:"path,omitempty"`
	// DSN is the connection string for warehouse engines.
	DSN string `yaml:"dsn,omitempty"`
	// Pattern is the CSV path or glob for file engines; View names the
	// table the data loads under.
	Pattern string `yaml:"pattern,omitempty"`
	View    string `yaml:"view,omitempty"`

	PoolSize    int           `yaml:"pool_size,omitempty"`
	PoolTimeout time.Duration `yaml:"pool_timeout,omitempty"`
}

// Store kinds.
const (
	StoreDB   = "db"
	StoreFile = "file"
	StoreNone = "none"
)

// Config holds all application configuration.
type Config struct {
	Log logger.Config

	ListenAddr string
	SuiteDir   string

	StoreKind string
	StorePath string

	BindingTimeout time.Duration

	EnginesFile string
	Engines     []EngineConfig
}

// Load reads configuration from the environment (a .env file is honored when
// present) and the engine manifest it points at.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Log: logger.Config{
			Level:  envString("VERIDATA_LOG_LEVEL", "info"),
			Format: envString("VERIDATA_LOG_FORMAT", "text"),
			Output: envString("VERIDATA_LOG_OUTPUT", "stdout"),
			File:   os.Getenv("VERIDATA_LOG_FILE"),
		},
		ListenAddr:  envString("VERIDATA_LISTEN_ADDR", ":8080"),
		SuiteDir:    envString("VERIDATA_SUITE_DIR", "suites"),
		StoreKind:   envString("VERIDATA_STORE", StoreDB),
		StorePath:   envString("VERIDATA_STORE_PATH", "veridata.db"),
		EnginesFile: envString("VERIDATA_ENGINES_FILE", "engines.yaml"),
	}

	timeout, err := envDuration("VERIDATA_BINDING_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	cfg.BindingTimeout = timeout

	switch cfg.StoreKind {
	case StoreDB, StoreFile, StoreNone:
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.StoreKind)
	}

	engines, err := loadEngineManifest(cfg.EnginesFile)
	if err != nil {
		return nil, err
	}
	cfg.Engines = engines
	return cfg, nil
}

func loadEngineManifest(path string) ([]EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read engine manifest %q: %w", path, err)
	}
	var manifest struct {
		Engines []EngineConfig `yaml:"engines"`
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse engine manifest %q: %w", path, err)
	}
	seen := make(map[string]struct{}, len(manifest.Engines))
	for _, e := range manifest.Engines {
		if e.Name == "" {
			return nil, fmt.Errorf("engine manifest %q: every engine needs a name", path)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("engine manifest %q: duplicate engine %q", path, e.Name)
		}
		seen[e.Name] = struct{}{}
		switch e.Kind {
		case KindSQLite, KindFile, KindPostgres:
		default:
			return nil, fmt.Errorf("engine %q: unknown kind %q", e.Name, e.Kind)
		}
	}
	return manifest.Engines, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
