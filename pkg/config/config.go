// Package config loads the service-wide Configuration entity (spec.md §3),
// built once at process start and shared, read-only, by every invocation of
// the orchestrator. Its shape follows the teacher's three-step
// Default/LoadFromFile/LoadFromEnv/Validate pattern, with the teacher's own
// hand-rolled TOML parser replaced by github.com/BurntSushi/toml.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	corefs "github.com/python-discord/snekbox/pkg/fs"
)

// Config is the service-wide Configuration entity.
type Config struct {
	Jailer  JailerSection  `toml:"jailer"`
	MemFS   MemFSSection   `toml:"memfs"`
	Log     LogSection     `toml:"log"`
	Harvest HarvestSection `toml:"harvest"`
}

// JailerSection locates the jailer binary and its own configuration file.
type JailerSection struct {
	BinaryPath string `toml:"binary_path"`
	ConfigPath string `toml:"config_path"`
}

// MemFSSection bounds the per-invocation tmpfs workspace.
type MemFSSection struct {
	RootDir        string      `toml:"root_dir"`
	InstanceBytes  corefs.Size `toml:"instance_bytes"`
	MaxOutputBytes int64       `toml:"max_output_bytes"`
	ReadChunkBytes int64       `toml:"read_chunk_bytes"`
	FileCountLimit int         `toml:"file_count_limit"`
	FilePattern    string      `toml:"file_pattern"`
}

// HarvestSection bounds the post-execution harvest pass.
type HarvestSection struct {
	TimeoutSeconds float64 `toml:"timeout_seconds"`
}

// LogSection controls the ambient logging stack.
type LogSection struct {
	Level        string `toml:"level"`
	Format       string `toml:"format"`
	Debug        bool   `toml:"debug"`
	TelemetryDSN string `toml:"telemetry_dsn"`
}

// Default returns the built-in configuration, matching the values the
// original snekbox prototype shipped with.
func Default() *Config {
	return &Config{
		Jailer: JailerSection{
			BinaryPath: "/usr/sbin/nsjail",
			ConfigPath: "/etc/snekbox/jail.cfg",
		},
		MemFS: MemFSSection{
			RootDir:        "/memfs",
			InstanceBytes:  64 * corefs.MiB,
			MaxOutputBytes: 1 * int64(corefs.MiB),
			ReadChunkBytes: 10 * int64(corefs.KiB),
			FileCountLimit: 100,
			FilePattern:    "*",
		},
		Harvest: HarvestSection{
			TimeoutSeconds: 5,
		},
		Log: LogSection{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a TOML file, returning the
// defaults if the file does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv overrides cfg in place from SNEKBOX_-prefixed environment
// variables, matching the teacher's env override scheme.
func LoadFromEnv(cfg *Config) {
	loadEnvString(&cfg.Jailer.BinaryPath, "SNEKBOX_JAILER_BINARY_PATH")
	loadEnvString(&cfg.Jailer.ConfigPath, "SNEKBOX_JAILER_CONFIG_PATH")
	loadEnvString(&cfg.MemFS.RootDir, "SNEKBOX_MEMFS_ROOT_DIR")
	loadEnvInt64(&cfg.MemFS.MaxOutputBytes, "SNEKBOX_MEMFS_MAX_OUTPUT_BYTES")
	loadEnvInt64(&cfg.MemFS.ReadChunkBytes, "SNEKBOX_MEMFS_READ_CHUNK_BYTES")
	loadEnvInt(&cfg.MemFS.FileCountLimit, "SNEKBOX_MEMFS_FILE_COUNT_LIMIT")
	loadEnvString(&cfg.MemFS.FilePattern, "SNEKBOX_MEMFS_FILE_PATTERN")
	loadEnvFloat(&cfg.Harvest.TimeoutSeconds, "SNEKBOX_HARVEST_TIMEOUT_SECONDS")
	loadEnvString(&cfg.Log.Level, "SNEKBOX_LOG_LEVEL")
	loadEnvString(&cfg.Log.Format, "SNEKBOX_LOG_FORMAT")
	loadEnvBool(&cfg.Log.Debug, "SNEKBOX_DEBUG")
	loadEnvString(&cfg.Log.TelemetryDSN, "SNEKBOX_TELEMETRY_DSN")
}

// Validate checks that every byte/count field is non-negative and that the
// jailer binary and config file exist, per spec.md §3's Configuration
// invariants ("all bytes/counts >= 0; paths resolvable at startup").
func (c *Config) Validate() error {
	if c.MemFS.InstanceBytes <= 0 {
		return fmt.Errorf("memfs.instance_bytes must be positive, got %d", c.MemFS.InstanceBytes)
	}
	if c.MemFS.MaxOutputBytes < 0 || c.MemFS.ReadChunkBytes < 0 || c.MemFS.FileCountLimit < 0 {
		return fmt.Errorf("memfs byte/count limits must be non-negative")
	}
	if c.Harvest.TimeoutSeconds < 0 {
		return fmt.Errorf("harvest.timeout_seconds must be non-negative")
	}
	if _, err := os.Stat(c.Jailer.BinaryPath); err != nil {
		return fmt.Errorf("jailer binary not found: %s: %w", c.Jailer.BinaryPath, err)
	}
	if _, err := os.Stat(c.Jailer.ConfigPath); err != nil {
		return fmt.Errorf("jailer config not found: %s: %w", c.Jailer.ConfigPath, err)
	}
	return nil
}

// ApplyToLogger configures log's level and formatter from c, and, if a
// telemetry DSN is set, attaches it as a static field on the returned entry
// so a future hook can use it (spec.md §6/§12's Sentry-release-tagging
// supplement; no telemetry SDK call is made here).
func (c *Config) ApplyToLogger(log *logrus.Logger) *logrus.Entry {
	switch c.Log.Level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	entry := logrus.NewEntry(log)
	if c.Log.TelemetryDSN != "" {
		entry = entry.WithField("dsn", c.Log.TelemetryDSN)
	}
	return entry
}

func loadEnvString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func loadEnvBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func loadEnvInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func loadEnvInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func loadEnvFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}
