package support

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/weegigs/wee-ledger-go/stores/boltdb"
)

const envPrefix = "LEDGER_"

type Config struct {
	Store       StoreConfig      `koanf:"store"`
	Snapshots   SnapshotConfig   `koanf:"snapshots"`
	Projections ProjectionConfig `koanf:"projections"`
	HTTP        HTTPConfig       `koanf:"http"`
	Log         LogConfig        `koanf:"log"`
	Telemetry   TelemetryConfig  `koanf:"telemetry"`
}

type StoreConfig struct {
	Path            string        `koanf:"path"`
	Durability      string        `koanf:"durability"`
	OpenTimeout     time.Duration `koanf:"open_timeout"`
	CapacityBytes   int64         `koanf:"capacity_bytes"`
	Workers         int           `koanf:"workers"`
	StreamBatchSize int           `koanf:"stream_batch_size"`
}

// SnapshotConfig selects the snapshot policy. Zero values disable that trigger.
type SnapshotConfig struct {
	EveryEvents   uint64        `koanf:"every_events"`
	EveryInterval time.Duration `koanf:"every_interval"`
}

type ProjectionConfig struct {
	PollInterval    time.Duration `koanf:"poll_interval"`
	BatchSize       int           `koanf:"batch_size"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type TelemetryConfig struct {
	Exporter string `koanf:"exporter"`
	Endpoint string `koanf:"endpoint"`
}

func (c Config) DurabilityMode() (boltdb.Durability, error) {
	return boltdb.ParseDurability(c.Store.Durability)
}

var defaults = map[string]any{
	"store.path":                   "ledger.db",
	"store.durability":             boltdb.MaxDurability.String(),
	"store.open_timeout":           5 * time.Second,
	"store.capacity_bytes":         int64(boltdb.DefaultCapacity),
	"store.workers":                16,
	"store.stream_batch_size":      boltdb.DefaultBatchSize,
	"snapshots.every_events":       100,
	"snapshots.every_interval":     time.Duration(0),
	"projections.poll_interval":    time.Second,
	"projections.batch_size":       100,
	"projections.breaker_failures": 5,
	"projections.breaker_timeout":  30 * time.Second,
	"http.addr":                    ":8080",
	"log.level":                    "info",
	"log.format":                   "console",
	"telemetry.exporter":           "none",
	"telemetry.endpoint":           "",
}

// LoadConfig layers built-in defaults, the optional YAML file at path and LEDGER_
// environment variables, in that order of precedence.
//
//	LEDGER_STORE_PATH              -> store.path
//	LEDGER_PROJECTIONS_BATCH_SIZE  -> projections.batch_size
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("setting default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	lookup := make(map[string]string, len(defaults))
	for _, key := range k.Keys() {
		lookup[strings.ReplaceAll(key, ".", "_")] = key
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			if known, ok := lookup[key]; ok {
				return known, value
			}
			return strings.ReplaceAll(key, "_", "."), value
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return errors.Join(
		c.Store.validate(),
		c.Projections.validate(),
		c.Log.validate(),
		c.Telemetry.validate(),
	)
}

func (s *StoreConfig) validate() error {
	var errs []error

	if strings.TrimSpace(s.Path) == "" {
		errs = append(errs, errors.New("store.path must not be empty"))
	}
	if _, err := boltdb.ParseDurability(s.Durability); err != nil {
		errs = append(errs, fmt.Errorf("store.durability: %w", err))
	}
	if s.OpenTimeout < 0 {
		errs = append(errs, errors.New("store.open_timeout must not be negative"))
	}
	if s.CapacityBytes <= 0 {
		errs = append(errs, errors.New("store.capacity_bytes must be positive"))
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Errorf("store.workers must be at least 1, got %d", s.Workers))
	}
	if s.StreamBatchSize < 1 {
		errs = append(errs, fmt.Errorf("store.stream_batch_size must be at least 1, got %d", s.StreamBatchSize))
	}

	return errors.Join(errs...)
}

func (p *ProjectionConfig) validate() error {
	var errs []error

	if p.PollInterval <= 0 {
		errs = append(errs, errors.New("projections.poll_interval must be positive"))
	}
	if p.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("projections.batch_size must be at least 1, got %d", p.BatchSize))
	}
	if p.BreakerFailures < 1 {
		errs = append(errs, errors.New("projections.breaker_failures must be at least 1"))
	}

	return errors.Join(errs...)
}

func (l *LogConfig) validate() error {
	var errs []error

	switch l.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of: trace, debug, info, warn, error; got %q", l.Level))
	}

	switch l.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of: json, console; got %q", l.Format))
	}

	return errors.Join(errs...)
}

func (t *TelemetryConfig) validate() error {
	switch t.Exporter {
	case "none", "console":
		return nil
	case "otlp":
		if t.Endpoint == "" {
			return errors.New("telemetry.endpoint is required for the otlp exporter")
		}
		return nil
	default:
		return fmt.Errorf("telemetry.exporter must be one of: none, console, otlp; got %q", t.Exporter)
	}
}
