// Package config carries the tunables for the market-data cache: memory
// tier capacities, durable tier row caps and timeouts, and the SQLite file
// location. Values come from defaults, an optional YAML file, and
// MARKETCACHE_* environment overrides, in that order.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5s"
// or "1h30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := str2duration.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "config: invalid duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// MemoryConfig holds the entry capacity of each memory tier instance.
type MemoryConfig struct {
	Documents   int `yaml:"documents"`
	Tables      int `yaml:"tables"`
	Projections int `yaml:"projections"`
	Derived     int `yaml:"derived"`
}

// DurableConfig holds the durable tier's bounds and degradation policy.
type DurableConfig struct {
	// RowCap is the per-table row cap enforced after every put.
	RowCap int `yaml:"row_cap"`

	// BusyTimeout bounds each SQLite operation's wait on a held lock.
	BusyTimeout Duration `yaml:"busy_timeout"`

	// RetryAttempts and RetryDelay bound retries on transient lock errors.
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryDelay    Duration `yaml:"retry_delay"`

	// BreakerMaxFailures consecutive failures disable the tier for
	// BreakerCooldown.
	BreakerMaxFailures int      `yaml:"breaker_max_failures"`
	BreakerCooldown    Duration `yaml:"breaker_cooldown"`
}

// Config is the full cache configuration.
type Config struct {
	// DurablePath is the SQLite file shared by all durable categories.
	DurablePath string `yaml:"durable_path"`

	Memory  MemoryConfig  `yaml:"memory"`
	Durable DurableConfig `yaml:"durable"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		DurablePath: "marketcache.db",
		Memory: MemoryConfig{
			Documents:   128,
			Tables:      32,
			Projections: 64,
			Derived:     64,
		},
		Durable: DurableConfig{
			RowCap:             256,
			BusyTimeout:        Duration(5 * time.Second),
			RetryAttempts:      3,
			RetryDelay:         Duration(50 * time.Millisecond),
			BreakerMaxFailures: 5,
			BreakerCooldown:    Duration(30 * time.Second),
		},
	}
}

// LoadFile reads a YAML config file over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "config: read %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays MARKETCACHE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("MARKETCACHE_DB"); v != "" {
		c.DurablePath = v
	}
	if v := os.Getenv("MARKETCACHE_ROW_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "config: MARKETCACHE_ROW_CAP")
		}
		c.Durable.RowCap = n
	}
	if v := os.Getenv("MARKETCACHE_BUSY_TIMEOUT"); v != "" {
		d, err := str2duration.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "config: MARKETCACHE_BUSY_TIMEOUT")
		}
		c.Durable.BusyTimeout = Duration(d)
	}
	return c.Validate()
}

// Validate rejects configurations that would violate the cache's bounds.
func (c *Config) Validate() error {
	for name, v := range map[string]int{
		"memory.documents":   c.Memory.Documents,
		"memory.tables":      c.Memory.Tables,
		"memory.projections": c.Memory.Projections,
		"memory.derived":     c.Memory.Derived,
		"durable.row_cap":    c.Durable.RowCap,
	} {
		if v < 1 {
			return errors.Newf("config: %s must be >= 1, got %d", name, v)
		}
	}
	if c.DurablePath == "" {
		return errors.New("config: durable_path must not be empty")
	}
	return nil
}
