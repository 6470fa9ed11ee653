// Package config loads runtime configuration from defaults, an optional YAML
// file and MOVIES_-prefixed environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MOVIES_"

// FileEnv names the variable holding an optional YAML config path.
const FileEnv = "MOVIES_CONFIG"

// Ratings backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// Config captures all runtime configuration.
type Config struct {
	Port              string `koanf:"port"`
	DBURL             string `koanf:"db_url"`
	ReadTimeoutSecs   int    `koanf:"server_read_timeout"`
	WriteTimeoutSecs  int    `koanf:"server_write_timeout"`
	IdleTimeoutSecs   int    `koanf:"server_idle_timeout"`
	DBMaxConns        int    `koanf:"db_max_conns"`
	DBMinConns        int    `koanf:"db_min_conns"`
	DBMaxIdleSecs     int    `koanf:"db_max_conn_idle_secs"`
	DBMaxLifeSecs     int    `koanf:"db_max_conn_lifetime_secs"`
	DBConnTimeoutSecs int    `koanf:"db_conn_timeout_secs"`
	DBStatementCache  int    `koanf:"db_statement_cache_capacity"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// RatingsBackend selects where the ratings table lives.
	RatingsBackend string `koanf:"ratings_backend"`
	// RatingsTable is the logical table name for the postgres and redis
	// backends.
	RatingsTable string `koanf:"ratings_table"`
	// RatingsSeedFile is a ratings CSV loaded into the memory backend at
	// startup.
	RatingsSeedFile  string `koanf:"ratings_seed_file"`
	RedisURL         string `koanf:"redis_url"`
	DynamoDBTable    string `koanf:"dynamodb_table"`
	DynamoDBEndpoint string `koanf:"dynamodb_endpoint"`
	AWSRegion        string `koanf:"aws_region"`
	// ScanPageSize is the page size of paged backends (redis, dynamodb).
	ScanPageSize int `koanf:"scan_page_size"`
	// ScanMaxRetries is the total number of attempts per rating query.
	ScanMaxRetries int `koanf:"scan_max_retries"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Port:              "8080",
		ReadTimeoutSecs:   15,
		WriteTimeoutSecs:  15,
		IdleTimeoutSecs:   60,
		DBMaxConns:        20,
		DBMinConns:        2,
		DBMaxIdleSecs:     300,
		DBMaxLifeSecs:     3600,
		DBConnTimeoutSecs: 10,
		DBStatementCache:  256,
		LogLevel:          "info",
		LogFormat:         "json",
		RatingsBackend:    BackendMemory,
		RatingsTable:      "ratings",
		AWSRegion:         "us-east-1",
		ScanPageSize:      500,
		ScanMaxRetries:    2,
	}
}

// Load layers defaults, the YAML file named by MOVIES_CONFIG and MOVIES_*
// environment variables, then validates the result.
func Load() (Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(FileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting by its environment variable.
func (cfg Config) Validate() error {
	if cfg.DBURL == "" {
		return fmt.Errorf("%sDB_URL is required", EnvPrefix)
	}
	if cfg.ReadTimeoutSecs <= 0 || cfg.WriteTimeoutSecs <= 0 || cfg.IdleTimeoutSecs <= 0 {
		return fmt.Errorf("%sSERVER_*_TIMEOUT must be positive", EnvPrefix)
	}
	if cfg.DBMaxConns <= 0 {
		return fmt.Errorf("%sDB_MAX_CONNS must be positive", EnvPrefix)
	}
	if cfg.DBMinConns < 0 {
		return fmt.Errorf("%sDB_MIN_CONNS must be non-negative", EnvPrefix)
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("%sDB_MIN_CONNS cannot exceed %sDB_MAX_CONNS", EnvPrefix, EnvPrefix)
	}
	if cfg.DBStatementCache < 0 {
		return fmt.Errorf("%sDB_STATEMENT_CACHE_CAPACITY must be non-negative", EnvPrefix)
	}
	if cfg.ScanMaxRetries <= 0 {
		return fmt.Errorf("%sSCAN_MAX_RETRIES must be positive", EnvPrefix)
	}
	if cfg.ScanPageSize <= 0 {
		return fmt.Errorf("%sSCAN_PAGE_SIZE must be positive", EnvPrefix)
	}

	switch cfg.RatingsBackend {
	case BackendMemory, BackendPostgres:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("%sREDIS_URL is required for the redis backend", EnvPrefix)
		}
	case BackendDynamoDB:
		if cfg.DynamoDBTable == "" {
			return fmt.Errorf("%sDYNAMODB_TABLE is required for the dynamodb backend", EnvPrefix)
		}
	default:
		return fmt.Errorf("%sRATINGS_BACKEND must be one of %s, %s, %s, %s",
			EnvPrefix, BackendMemory, BackendPostgres, BackendRedis, BackendDynamoDB)
	}
	if cfg.RatingsTable == "" {
		return fmt.Errorf("%sRATINGS_TABLE is required", EnvPrefix)
	}
	return nil
}
