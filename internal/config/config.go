package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variables; TASKAPI_STORE_DRIVER sets store.driver.
const EnvPrefix = "TASKAPI_"

const (
	DriverSQLite  = "sqlite"
	DriverSQLite3 = "sqlite3"
	DriverMongo   = "mongo"
	DriverArango  = "arango"
	DriverMemory  = "memory"

	BulkModeSequential = "sequential"
	BulkModeStaged     = "staged"

	TracingNone   = "none"
	TracingStdout = "stdout"
)

var (
	drivers      = []string{DriverSQLite, DriverSQLite3, DriverMongo, DriverArango, DriverMemory}
	bulkModes    = []string{BulkModeSequential, BulkModeStaged}
	tracingModes = []string{TracingNone, TracingStdout}
)

type HTTP struct {
	Addr            string        `koanf:"addr"`
	CORSOrigins     []string      `koanf:"cors"`
	MaxBodyBytes    int64         `koanf:"maxbody"`
	ShutdownTimeout time.Duration `koanf:"shutdown"`
}

type SQLite struct {
	Path string `koanf:"path"`
}

type Mongo struct {
	URI        string `koanf:"uri"`
	Database   string `koanf:"database"`
	Collection string `koanf:"collection"`
}

type Arango struct {
	Endpoints  []string `koanf:"endpoints"`
	User       string   `koanf:"user"`
	Password   string   `koanf:"password"`
	Database   string   `koanf:"database"`
	Collection string   `koanf:"collection"`
}

type Store struct {
	Driver      string `koanf:"driver"`
	AutoMigrate bool   `koanf:"automigrate"`
	SQLite      SQLite `koanf:"sqlite"`
	Mongo       Mongo  `koanf:"mongo"`
	Arango      Arango `koanf:"arango"`
}

type Bulk struct {
	Mode string `koanf:"mode"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type Tracing struct {
	Exporter string `koanf:"exporter"`
}

type Config struct {
	HTTP    HTTP    `koanf:"http"`
	Store   Store   `koanf:"store"`
	Bulk    Bulk    `koanf:"bulk"`
	Log     Log     `koanf:"log"`
	Tracing Tracing `koanf:"tracing"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"http.addr":               ":8080",
		"http.cors":               []string{},
		"http.maxbody":            int64(1 << 20),
		"http.shutdown":           "10s",
		"store.driver":            DriverSQLite,
		"store.automigrate":       true,
		"store.sqlite.path":       "./data/tasks.db",
		"store.mongo.uri":         "mongodb://localhost:27017",
		"store.mongo.database":    "task-api",
		"store.mongo.collection":  "tasks",
		"store.arango.endpoints":  []string{"http://localhost:8529"},
		"store.arango.user":       "root",
		"store.arango.password":   "",
		"store.arango.database":   "task_api",
		"store.arango.collection": "tasks",
		"bulk.mode":               BulkModeSequential,
		"log.level":               "info",
		"log.format":              "json",
		"tracing.exporter":        TracingNone,
	}
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("http.addr", ":8080", "HTTP listen address")
	fs.String("store.driver", DriverSQLite, "Store driver ("+strings.Join(drivers, "|")+")")
	fs.String("store.sqlite.path", "./data/tasks.db", "SQLite database path")
	fs.String("store.mongo.uri", "mongodb://localhost:27017", "MongoDB connection URI")
	fs.String("bulk.mode", BulkModeSequential, "Bulk update mode ("+strings.Join(bulkModes, "|")+")")
	fs.String("log.level", "info", "Log level")
}

// Load merges defaults, the optional config file, TASKAPI_* environment
// variables and flags, in that order of precedence. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

func (c *Config) Validate() error {
	if !lo.Contains(drivers, c.Store.Driver) {
		return fmt.Errorf("unsupported store driver %q, expected one of %v", c.Store.Driver, drivers)
	}
	if !lo.Contains(bulkModes, c.Bulk.Mode) {
		return fmt.Errorf("unsupported bulk mode %q, expected one of %v", c.Bulk.Mode, bulkModes)
	}
	if !lo.Contains(tracingModes, c.Tracing.Exporter) {
		return fmt.Errorf("unsupported tracing exporter %q, expected one of %v", c.Tracing.Exporter, tracingModes)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.maxbody must be positive")
	}
	return nil
}
