package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks configuration errors. They are fatal and reported
// before any phase starts.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Ixperf      IxperfConfig      `yaml:"ixperf" json:"ixperf"`
	Generator   GeneratorConfig   `yaml:"generator" json:"generator"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency"`
	Stats       StatsConfig       `yaml:"stats" json:"stats"`
	Index       IndexConfig       `yaml:"index" json:"index"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Tracing     TracingConfig     `yaml:"tracing" json:"tracing"`
	Server      ServerConfig      `yaml:"server" json:"server"`
}

type IxperfConfig struct {
	Name       string `yaml:"name" json:"name"`
	KeyType    string `yaml:"key_type" json:"key_type"`
	ValueType  string `yaml:"value_type" json:"value_type"`
	Output     string `yaml:"output" json:"output"`           // text, structured or json
	ReportFile string `yaml:"report_file" json:"report_file"` // optional persisted report
	Validate   bool   `yaml:"validate" json:"validate"`       // compare index size with counted outcomes
}

type GeneratorConfig struct {
	Seed        uint64 `yaml:"seed" json:"seed"` // 0 derives a seed from the clock
	KeySize     int    `yaml:"key_size" json:"key_size"`
	ValueSize   int    `yaml:"value_size" json:"value_size"`
	ChannelSize int    `yaml:"channel_size" json:"channel_size"`
	Loads       uint64 `yaml:"loads" json:"loads"`
	Sets        uint64 `yaml:"sets" json:"sets"`
	Deletes     uint64 `yaml:"deletes" json:"deletes"`
	Gets        uint64 `yaml:"gets" json:"gets"`
	Iterates    uint64 `yaml:"iterates" json:"iterates"`
	Ranges      uint64 `yaml:"ranges" json:"ranges"`
	Reverses    uint64 `yaml:"reverses" json:"reverses"`
}

// ReadOps is the number of incremental read operations
func (g GeneratorConfig) ReadOps() uint64 {
	return g.Gets + g.Iterates + g.Ranges + g.Reverses
}

// WriteOps is the number of incremental write operations
func (g GeneratorConfig) WriteOps() uint64 {
	return g.Sets + g.Deletes
}

type ConcurrencyConfig struct {
	Loaders int `yaml:"loaders" json:"loaders"` // initial-load generator/executor pairs
	Readers int `yaml:"readers" json:"readers"`
	Writers int `yaml:"writers" json:"writers"`
}

type StatsConfig struct {
	SampleEvery    int           `yaml:"sample_every" json:"sample_every"`
	Buckets        int           `yaml:"buckets" json:"buckets"`
	BucketWidth    time.Duration `yaml:"bucket_width" json:"bucket_width"`
	ReportInterval time.Duration `yaml:"report_interval" json:"report_interval"` // 0 disables periodic stats
}

type IndexConfig struct {
	Type      string       `yaml:"type" json:"type"`
	Degree    int          `yaml:"degree" json:"degree"`
	CacheSize int          `yaml:"cache_size" json:"cache_size"` // 0 disables the LRU read cache
	Badger    BadgerConfig `yaml:"badger" json:"badger"`
	Redis     RedisConfig  `yaml:"redis" json:"redis"`
}

type BadgerConfig struct {
	DataPath   string `yaml:"data_path" json:"data_path"`
	InMemory   bool   `yaml:"in_memory" json:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes" json:"sync_writes"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	PageSize int    `yaml:"page_size" json:"page_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// TracingConfig controls OpenTelemetry spans for runs, phases and tasks.
// Individual index operations are never traced.
type TracingConfig struct {
	Enabled       bool              `yaml:"enabled" json:"enabled"`
	Exporter      string            `yaml:"exporter" json:"exporter"` // console or otlp
	OTLPEndpoint  string            `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	OTLPHeaders   map[string]string `yaml:"otlp_headers" json:"otlp_headers"`
	SamplingRatio float64           `yaml:"sampling_ratio" json:"sampling_ratio"`
}

type ServerConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host"`
	HTTPPort int    `yaml:"http_port" json:"http_port"`
	GRPCPort int    `yaml:"grpc_port" json:"grpc_port"`

	// Health limits for the harness process; zero disables a limit
	MaxMemoryMB   uint64 `yaml:"max_memory_mb" json:"max_memory_mb"`
	MaxGoroutines int    `yaml:"max_goroutines" json:"max_goroutines"`
}

var (
	keyTypes   = map[string]bool{"u64": true, "i64": true, "i32": true, "array": true, "bytes": true}
	indexTypes = map[string]bool{"btree": true, "snapshot": true, "badger": true, "redis": true}
	outputs    = map[string]bool{"text": true, "structured": true, "json": true}
)

func Load(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Ixperf: IxperfConfig{
			Name:      "ixperf",
			KeyType:   "u64",
			ValueType: "u64",
			Output:    "text",
			Validate:  true,
		},
		Generator: GeneratorConfig{
			Seed:        0,
			KeySize:     16,
			ValueSize:   16,
			ChannelSize: 1000,
			Loads:       1_000_000,
			Sets:        100_000,
			Deletes:     10_000,
			Gets:        100_000,
			Iterates:    0,
			Ranges:      1_000,
			Reverses:    1_000,
		},
		Concurrency: ConcurrencyConfig{
			Loaders: 1,
			Readers: 0,
			Writers: 0,
		},
		Stats: StatsConfig{
			SampleEvery:    8,
			Buckets:        1_000_000,
			BucketWidth:    100 * time.Nanosecond,
			ReportInterval: 0,
		},
		Index: IndexConfig{
			Type:   "btree",
			Degree: 32,
			Badger: BadgerConfig{
				DataPath: "./data/badger",
				InMemory: true,
			},
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				Prefix:   "ixperf",
				PageSize: 1000,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "console",
			OTLPEndpoint:  "localhost:4318",
			SamplingRatio: 1.0,
		},
		Server: ServerConfig{
			Enabled:       false,
			Host:          "localhost",
			HTTPPort:      2112,
			GRPCPort:      9090,
			MaxMemoryMB:   4096,
			MaxGoroutines: 10000,
		},
	}
}

func loadFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return fmt.Errorf("%w: unsupported config file format: %s", ErrInvalidConfig, ext)
	}

	return nil
}

func loadFromEnvironment(config *Config) {
	if indexType := os.Getenv("IXPERF_INDEX"); indexType != "" {
		config.Index.Type = indexType
	}
	if keyType := os.Getenv("IXPERF_KEY_TYPE"); keyType != "" {
		config.Ixperf.KeyType = keyType
	}
	if valueType := os.Getenv("IXPERF_VALUE_TYPE"); valueType != "" {
		config.Ixperf.ValueType = valueType
	}
	if output := os.Getenv("IXPERF_OUTPUT"); output != "" {
		config.Ixperf.Output = output
	}

	// Generator configuration
	if seed := os.Getenv("IXPERF_SEED"); seed != "" {
		if s, err := strconv.ParseUint(seed, 10, 64); err == nil {
			config.Generator.Seed = s
		}
	}
	if loads := os.Getenv("IXPERF_LOADS"); loads != "" {
		if n, err := strconv.ParseUint(loads, 10, 64); err == nil {
			config.Generator.Loads = n
		}
	}

	// Concurrency configuration
	if readers := os.Getenv("IXPERF_READERS"); readers != "" {
		if n, err := strconv.Atoi(readers); err == nil {
			config.Concurrency.Readers = n
		}
	}
	if writers := os.Getenv("IXPERF_WRITERS"); writers != "" {
		if n, err := strconv.Atoi(writers); err == nil {
			config.Concurrency.Writers = n
		}
	}

	// Index backends
	if addr := os.Getenv("IXPERF_REDIS_ADDR"); addr != "" {
		config.Index.Redis.Addr = addr
	}
	if dataPath := os.Getenv("IXPERF_BADGER_DATA_PATH"); dataPath != "" {
		config.Index.Badger.DataPath = dataPath
	}
	if exporter := os.Getenv("IXPERF_TRACE_EXPORTER"); exporter != "" {
		config.Tracing.Enabled = true
		config.Tracing.Exporter = exporter
	}
	if endpoint := os.Getenv("IXPERF_OTLP_ENDPOINT"); endpoint != "" {
		config.Tracing.OTLPEndpoint = endpoint
	}
	if cacheSize := os.Getenv("IXPERF_CACHE_SIZE"); cacheSize != "" {
		if n, err := strconv.Atoi(cacheSize); err == nil {
			config.Index.CacheSize = n
		}
	}

	// Logging configuration
	if level := os.Getenv("IXPERF_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("IXPERF_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
}

func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	// Key/value types
	if !keyTypes[c.Ixperf.KeyType] {
		return fmt.Errorf("unsupported key type: %s", c.Ixperf.KeyType)
	}
	if !keyTypes[c.Ixperf.ValueType] {
		return fmt.Errorf("unsupported value type: %s", c.Ixperf.ValueType)
	}
	if !outputs[c.Ixperf.Output] {
		return fmt.Errorf("invalid output mode: %s", c.Ixperf.Output)
	}

	// Generator validation
	if c.Ixperf.KeyType == "bytes" && c.Generator.KeySize <= 0 {
		return fmt.Errorf("key size must be positive for bytes keys")
	}
	if c.Ixperf.ValueType == "bytes" && c.Generator.ValueSize < 0 {
		return fmt.Errorf("value size cannot be negative")
	}
	if c.Generator.ChannelSize <= 0 {
		return fmt.Errorf("channel size must be positive")
	}

	// Concurrency validation
	if c.Concurrency.Loaders < 0 || c.Concurrency.Readers < 0 || c.Concurrency.Writers < 0 {
		return fmt.Errorf("thread counts cannot be negative")
	}
	if c.Generator.Loads > 0 && c.Concurrency.Loaders == 0 {
		return fmt.Errorf("loads requested but no loaders configured")
	}
	if c.Concurrency.Readers+c.Concurrency.Writers > 0 {
		if c.Generator.ReadOps() > 0 && c.Concurrency.Readers == 0 {
			return fmt.Errorf("read operations requested but no readers configured")
		}
		if c.Generator.WriteOps() > 0 && c.Concurrency.Writers == 0 {
			return fmt.Errorf("write operations requested but no writers configured")
		}
	}

	// Stats validation
	if c.Stats.SampleEvery <= 0 {
		return fmt.Errorf("sample cadence must be positive")
	}
	if c.Stats.Buckets <= 0 {
		return fmt.Errorf("histogram buckets must be positive")
	}
	if c.Stats.BucketWidth <= 0 {
		return fmt.Errorf("histogram bucket width must be positive")
	}
	if c.Stats.ReportInterval < 0 {
		return fmt.Errorf("report interval cannot be negative")
	}

	// Index validation
	if !indexTypes[c.Index.Type] {
		return fmt.Errorf("unsupported index type: %s", c.Index.Type)
	}
	if c.Index.Type == "badger" && !c.Index.Badger.InMemory && c.Index.Badger.DataPath == "" {
		return fmt.Errorf("badger data path cannot be empty when not using in-memory storage")
	}
	if c.Index.Type == "redis" && c.Index.Redis.Addr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if c.Index.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative: %d", c.Index.CacheSize)
	}

	// Logging validation
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Tracing validation
	if c.Tracing.Enabled {
		if c.Tracing.Exporter != "console" && c.Tracing.Exporter != "otlp" {
			return fmt.Errorf("unsupported trace exporter: %s", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
			return fmt.Errorf("sampling ratio must be within [0, 1]: %v", c.Tracing.SamplingRatio)
		}
	}

	// Server validation
	if c.Server.Enabled {
		if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
			return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
		}
		if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
			return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
		}
		if c.Server.HTTPPort != 0 && c.Server.HTTPPort == c.Server.GRPCPort {
			return fmt.Errorf("http port and gRPC port cannot be the same: %d", c.Server.HTTPPort)
		}
		if c.Server.MaxGoroutines < 0 {
			return fmt.Errorf("max goroutines cannot be negative: %d", c.Server.MaxGoroutines)
		}
	}

	return nil
}

// ResolveSeed replaces a zero seed with one derived from the clock and
// returns the seed in effect.
func (c *Config) ResolveSeed() uint64 {
	if c.Generator.Seed == 0 {
		c.Generator.Seed = uint64(time.Now().UnixNano())
	}
	return c.Generator.Seed
}

func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
