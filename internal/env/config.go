package env

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/luma/ninep/protocol"
)

const (
	DefaultHost     = "0.0.0.0"
	DefaultPort     = 5640
	DefaultHTTPPort = 5641
)

// MinMsize matches the smallest msize the client and file server accept.
const MinMsize = 512

var (
	ErrInvalidMsize    = fmt.Errorf("msize must be at least %d", MinMsize)
	ErrInvalidPort     = errors.New("port must be between 0 and 65535")
	ErrInvalidLogLevel = errors.New("unknown log level")
)

type Config struct {
	Host      string `toml:"host" env:"NINEP_HOST"`
	Port      int    `toml:"port" env:"NINEP_PORT"`
	HTTPPort  int    `toml:"http_port" env:"NINEP_HTTP_PORT"`
	Msize     uint32 `toml:"msize" env:"NINEP_MSIZE"`
	Listeners int    `toml:"listeners" env:"NINEP_LISTENERS"`
	LogLevel  string `toml:"log_level" env:"NINEP_LOG_LEVEL"`
	DebugHTTP bool   `toml:"debug_http" env:"NINEP_DEBUG_HTTP"`
	Trace     bool   `toml:"trace" env:"NINEP_TRACE"`

	// Seed is a JSON file loaded into the store at startup
	Seed string `toml:"seed" env:"NINEP_SEED"`

	// Owner is reported as the uid and gid of every file
	Owner string `toml:"owner" env:"NINEP_OWNER"`
}

func DefaultConfig() *Config {
	return &Config{
		Host:     DefaultHost,
		Port:     DefaultPort,
		HTTPPort: DefaultHTTPPort,
		Msize:    protocol.DefaultMsize,
		LogLevel: "info",
		Owner:    "none",
	}
}

// LoadConfig layers, in increasing priority, the defaults, the TOML file at
// path (if path is set), .env.local and the process environment.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env.local: %w", err)
	}

	return LoadConfigWith(ctx, path, envconfig.OsLookuper())
}

// LoadConfigWith is LoadConfig reading variables from lookuper instead of
// the environment. .env.local is not read.
func LoadConfigWith(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, config); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var fromEnv Config
	if err := envconfig.ProcessWith(ctx, &fromEnv, lookuper); err != nil {
		return nil, err
	}

	config.overlay(&fromEnv)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// overlay copies every field of src that is not its zero value.
func (c *Config) overlay(src *Config) {
	if src.Host != "" {
		c.Host = src.Host
	}
	if src.Port != 0 {
		c.Port = src.Port
	}
	if src.HTTPPort != 0 {
		c.HTTPPort = src.HTTPPort
	}
	if src.Msize != 0 {
		c.Msize = src.Msize
	}
	if src.Listeners != 0 {
		c.Listeners = src.Listeners
	}
	if src.LogLevel != "" {
		c.LogLevel = src.LogLevel
	}
	if src.DebugHTTP {
		c.DebugHTTP = true
	}
	if src.Trace {
		c.Trace = true
	}
	if src.Seed != "" {
		c.Seed = src.Seed
	}
	if src.Owner != "" {
		c.Owner = src.Owner
	}
}

func (c *Config) Validate() error {
	if c.Msize < MinMsize {
		return fmt.Errorf("%w, got %d", ErrInvalidMsize, c.Msize)
	}

	for _, port := range []int{c.Port, c.HTTPPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w, got %d", ErrInvalidPort, port)
		}
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return l, fmt.Errorf("%w: %q", ErrInvalidLogLevel, level)
	}

	return l, nil
}
