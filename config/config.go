package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// EnvPrefix prefixes the environment variables that override defaults,
// e.g. ARCHIVE_PORT or ARCHIVE_READ_TIMEOUT.
const EnvPrefix = "ARCHIVE"

// ErrInvalidConfig is returned when loaded values fail validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Host           string        `config:"host" json:"host" validate:"required"`
	Port           int           `config:"port" json:"port" validate:"gte=0,lte=65535"`
	Workers        int           `config:"workers" json:"workers" validate:"gte=1,lte=1024"`
	RecvTimeout    time.Duration `config:"recv.timeout" json:"recv_timeout" validate:"gt=0"`
	ReadTimeout    time.Duration `config:"read.timeout" json:"read_timeout" validate:"gte=0"`
	WriteTimeout   time.Duration `config:"write.timeout" json:"write_timeout" validate:"gte=0"`
	IdleTimeout    time.Duration `config:"idle.timeout" json:"idle_timeout" validate:"gte=0"`
	MaxBodyBytes   int64         `config:"max.body.bytes" json:"max_body_bytes" validate:"gt=0"`
	MaxHeaderBytes int           `config:"max.header.bytes" json:"max_header_bytes" validate:"gte=512"`
	Compress       bool          `config:"compress" json:"compress"`
	Env            string        `config:"env" json:"env" validate:"oneof=development production test"`
	LogLevel       string        `config:"log.level" json:"log_level" validate:"oneof=debug info warn error"`
	Metrics        bool          `config:"metrics" json:"metrics"`
	Tracing        bool          `config:"tracing" json:"tracing"`
	GCPercent      int           `config:"gc.percent" json:"gc_percent" validate:"gte=-1"`
	MemoryLimit    int64         `config:"memory.limit" json:"memory_limit" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           8723,
		Workers:        4,
		RecvTimeout:    100 * time.Millisecond,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    5 * time.Second,
		MaxBodyBytes:   8 << 20,
		MaxHeaderBytes: 8 << 10,
		Compress:       true,
		Env:            "development",
		LogLevel:       "info",
	}
}

// New loads configuration from the command line, the environment and an
// optional config file. It exits on invalid input, like flag.Parse.
func New() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Parse builds a Config from defaults, then the file named by -config,
// then ARCHIVE_* environment variables, then flags given in args. Later
// sources win.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	d := Default()

	file := fs.String("config", "", "Config file (.json, .toml, .yaml)")
	fs.String("host", d.Host, "Bind host")
	fs.Int("port", d.Port, "HTTP server port")
	fs.Int("workers", d.Workers, "Number of worker goroutines")
	fs.Duration("recv-timeout", d.RecvTimeout, "Idle worker poll interval")
	fs.Duration("read-timeout", d.ReadTimeout, "Time allowed to read one request")
	fs.Duration("write-timeout", d.WriteTimeout, "Time allowed to write one response")
	fs.Duration("idle-timeout", d.IdleTimeout, "Keep-alive idle timeout")
	fs.Int64("max-body-bytes", d.MaxBodyBytes, "Largest accepted request body")
	fs.Int("max-header-bytes", d.MaxHeaderBytes, "Largest accepted request header block")
	fs.Bool("compress", d.Compress, "Deflate responses for clients that accept it")
	fs.String("env", d.Env, "Environment (development/production/test)")
	fs.String("log-level", d.LogLevel, "Log level (debug/info/warn/error)")
	fs.Bool("metrics", d.Metrics, "Expose Prometheus metrics at /metrics")
	fs.Bool("tracing", d.Tracing, "Export OpenTelemetry spans to stderr")
	fs.Int("gc-percent", d.GCPercent, "GOGC target (0 keeps the runtime default)")
	fs.Int64("memory-limit", d.MemoryLimit, "Soft memory limit in bytes (0 for none)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	m := NewManager()
	if *file != "" {
		if err := m.LoadFile(*file); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv(EnvPrefix)
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			m.Set(normalizeKey(f.Name), f.Value.String())
		}
	})

	cfg := Default()
	if err := m.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Addr returns host:port for net.Listen.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsProduction reports whether Env is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
