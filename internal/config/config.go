// Package config manages counterd daemon configuration using koanf/v2.
//
// Supports YAML or TOML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete counterd configuration.
type Config struct {
	GRPC     GRPCConfig     `koanf:"grpc"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Command  CommandConfig  `koanf:"command"`
	Counters CountersConfig `koanf:"counters"`
}

// GRPCConfig holds the ConnectRPC server configuration.
type GRPCConfig struct {
	// Addr is the listen address (e.g., ":50061").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9101").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// CommandConfig holds the UDP command transport configuration.
type CommandConfig struct {
	// ListenAddr is the UDP address command batches are received on
	// (e.g., "127.0.0.1:40123"). Empty disables the UDP transport.
	ListenAddr string `koanf:"listen_addr"`

	// MaxBatchBytes caps the size of one command batch and of its response.
	MaxBatchBytes int `koanf:"max_batch_bytes"`

	// ReadBufferBytes sets SO_RCVBUF on the command socket. Zero keeps the
	// kernel default.
	ReadBufferBytes int `koanf:"read_buffer_bytes"`

	// WriteTimeout bounds sending one response batch.
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// ListenAddrPort parses ListenAddr.
func (cc CommandConfig) ListenAddrPort() (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(cc.ListenAddr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse command listen_addr %q: %w", cc.ListenAddr, err)
	}
	return ap, nil
}

// CountersConfig holds the counter registry limits.
type CountersConfig struct {
	// MaxCounters is the maximum number of registered counters.
	MaxCounters int `koanf:"max_counters"`

	// MaxKeyLength is the maximum counter key length in bytes.
	MaxKeyLength int `koanf:"max_key_length"`

	// MaxLabelLength is the maximum counter label length in bytes.
	MaxLabelLength int `koanf:"max_label_length"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// Batch size bounds accepted for command.max_batch_bytes.
const (
	minBatchBytes = 64
	maxBatchBytes = 64 * 1024
)

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GRPC: GRPCConfig{
			Addr: ":50061",
		},
		Metrics: MetricsConfig{
			Addr: ":9101",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Command: CommandConfig{
			ListenAddr:      "127.0.0.1:40123",
			MaxBatchBytes:   maxBatchBytes,
			ReadBufferBytes: 1 << 20,
			WriteTimeout:    time.Second,
		},
		Counters: CountersConfig{
			MaxCounters:    4096,
			MaxKeyLength:   112,
			MaxLabelLength: 380,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for counterd configuration.
// Variables are named COUNTERD_<section>_<key>, e.g., COUNTERD_GRPC_ADDR.
const envPrefix = "COUNTERD_"

// Load reads configuration from a YAML file at path (TOML when the path ends
// in .toml), overlays environment variable overrides (COUNTERD_ prefix), and
// merges on top of DefaultConfig(). Missing fields inherit defaults. An empty
// path skips the file layer.
//
// Environment variable mapping:
//
//	COUNTERD_GRPC_ADDR              -> grpc.addr
//	COUNTERD_METRICS_ADDR           -> metrics.addr
//	COUNTERD_LOG_LEVEL              -> log.level
//	COUNTERD_COMMAND_LISTEN_ADDR    -> command.listen_addr
//	COUNTERD_COUNTERS_MAX_COUNTERS  -> counters.max_counters
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %q: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms COUNTERD_COMMAND_LISTEN_ADDR -> command.listen_addr.
// The first underscore after the prefix separates section from key; the
// rest belong to the key name.
func envKeyMapper(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, key, found := strings.Cut(s, "_")
	if !found {
		return s
	}
	return section + "." + key
}

// loadDefaults sets the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"grpc.addr":                 defaults.GRPC.Addr,
		"metrics.addr":              defaults.Metrics.Addr,
		"metrics.path":              defaults.Metrics.Path,
		"log.level":                 defaults.Log.Level,
		"log.format":                defaults.Log.Format,
		"command.listen_addr":       defaults.Command.ListenAddr,
		"command.max_batch_bytes":   defaults.Command.MaxBatchBytes,
		"command.read_buffer_bytes": defaults.Command.ReadBufferBytes,
		"command.write_timeout":     defaults.Command.WriteTimeout.String(),
		"counters.max_counters":     defaults.Counters.MaxCounters,
		"counters.max_key_length":   defaults.Counters.MaxKeyLength,
		"counters.max_label_length": defaults.Counters.MaxLabelLength,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyGRPCAddr indicates the RPC listen address is empty.
	ErrEmptyGRPCAddr = errors.New("grpc.addr must not be empty")

	// ErrInvalidLogFormat indicates an unrecognized log format.
	ErrInvalidLogFormat = errors.New("log.format must be json or text")

	// ErrInvalidListenAddr indicates the command listen address is not an
	// ip:port pair.
	ErrInvalidListenAddr = errors.New("command.listen_addr must be ip:port")

	// ErrInvalidMaxBatchBytes indicates a batch size outside [64, 65536].
	ErrInvalidMaxBatchBytes = errors.New("command.max_batch_bytes must be between 64 and 65536")

	// ErrInvalidReadBuffer indicates a negative socket receive buffer size.
	ErrInvalidReadBuffer = errors.New("command.read_buffer_bytes must be >= 0")

	// ErrInvalidWriteTimeout indicates a non-positive write timeout.
	ErrInvalidWriteTimeout = errors.New("command.write_timeout must be > 0")

	// ErrInvalidMaxCounters indicates a counter limit below one.
	ErrInvalidMaxCounters = errors.New("counters.max_counters must be >= 1")

	// ErrInvalidMaxKeyLength indicates a non-positive key length limit.
	ErrInvalidMaxKeyLength = errors.New("counters.max_key_length must be >= 1")

	// ErrInvalidMaxLabelLength indicates a non-positive label length limit.
	ErrInvalidMaxLabelLength = errors.New("counters.max_label_length must be >= 1")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.GRPC.Addr == "" {
		return ErrEmptyGRPCAddr
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q: %w", cfg.Log.Format, ErrInvalidLogFormat)
	}

	if err := validateCommand(cfg.Command); err != nil {
		return err
	}

	return validateCounters(cfg.Counters)
}

func validateCommand(cc CommandConfig) error {
	if cc.ListenAddr != "" {
		if _, err := cc.ListenAddrPort(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
		}
	}

	if cc.MaxBatchBytes < minBatchBytes || cc.MaxBatchBytes > maxBatchBytes {
		return fmt.Errorf("command.max_batch_bytes %d: %w", cc.MaxBatchBytes, ErrInvalidMaxBatchBytes)
	}

	if cc.ReadBufferBytes < 0 {
		return ErrInvalidReadBuffer
	}

	if cc.WriteTimeout <= 0 {
		return ErrInvalidWriteTimeout
	}

	return nil
}

func validateCounters(cc CountersConfig) error {
	if cc.MaxCounters < 1 {
		return ErrInvalidMaxCounters
	}

	if cc.MaxKeyLength < 1 {
		return ErrInvalidMaxKeyLength
	}

	if cc.MaxLabelLength < 1 {
		return ErrInvalidMaxLabelLength
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
