package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	DB         DBConfig         `yaml:"db"`
	Log        LogConfig        `yaml:"log"`
	Transport  TransportConfig  `yaml:"transport"`
	Auth       AuthConfig       `yaml:"auth"`
	Register   RegisterConfig   `yaml:"register"`
	Sync       SyncConfig       `yaml:"sync"`
	Repository RepositoryConfig `yaml:"repository"`
	Lease      LeaseConfig      `yaml:"lease"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RegisterConfig places and formats the workbook.
type RegisterConfig struct {
	Folder       string   `yaml:"folder"`
	FileName     string   `yaml:"file_name"`
	SheetName    string   `yaml:"sheet_name"`
	NumberPrefix string   `yaml:"number_prefix"`
	NumberWidth  int      `yaml:"number_width"`
	LeaseTTL     Duration `yaml:"lease_ttl"`
}

// SyncConfig tunes the per-project sync queue.
type SyncConfig struct {
	Backoff        []Duration `yaml:"backoff"`
	MaxRetries     int        `yaml:"max_retries"`
	ResetOnEnqueue bool       `yaml:"reset_on_enqueue"`
}

// RepositoryConfig selects where workbooks are stored.
type RepositoryConfig struct {
	Kind    string   `yaml:"kind"`
	Root    string   `yaml:"root"`
	BaseURL string   `yaml:"base_url"`
	DriveID string   `yaml:"drive_id"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
}

// LeaseConfig selects the store holding workbook sync state and leases.
type LeaseConfig struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

const (
	ModeStdio = "stdio"
	ModeHTTP  = "http"

	RepositoryFilesystem = "filesystem"
	RepositoryGraph      = "graph"

	LeaseSQLite   = "sqlite"
	LeasePostgres = "postgres"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Durations converts a list of Duration values.
func Durations(in []Duration) []time.Duration {
	out := make([]time.Duration, len(in))
	for i, d := range in {
		out[i] = d.Std()
	}
	return out
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "qaregister.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Transport: TransportConfig{
			Mode: ModeHTTP,
		},
		Register: RegisterConfig{
			Folder:       "Q&A",
			FileName:     "QA-register.xlsx",
			SheetName:    "Register",
			NumberPrefix: "FS",
			NumberWidth:  2,
			LeaseTTL:     Duration(2 * time.Minute),
		},
		Sync: SyncConfig{
			Backoff: []Duration{
				Duration(2 * time.Second),
				Duration(5 * time.Second),
				Duration(10 * time.Second),
				Duration(20 * time.Second),
				Duration(30 * time.Second),
			},
			MaxRetries:     5,
			ResetOnEnqueue: true,
		},
		Repository: RepositoryConfig{
			Kind:    RepositoryFilesystem,
			Root:    "registers",
			Timeout: Duration(30 * time.Second),
		},
		Lease: LeaseConfig{
			Backend: LeaseSQLite,
		},
	}
}

// Load reads configuration from an optional YAML file and environment
// variables. An empty path falls back to QAREGISTER_CONFIG_PATH.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("QAREGISTER_CONFIG_PATH")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	setString("QAREGISTER_SERVER_HOST", &cfg.Server.Host)
	if portStr := os.Getenv("QAREGISTER_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid QAREGISTER_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	setString("QAREGISTER_DB_PATH", &cfg.DB.Path)
	setString("QAREGISTER_LOG_LEVEL", &cfg.Log.Level)
	setString("QAREGISTER_LOG_FORMAT", &cfg.Log.Format)
	setString("QAREGISTER_TRANSPORT_MODE", &cfg.Transport.Mode)
	if v := os.Getenv("QAREGISTER_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid QAREGISTER_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = enabled
	}
	setString("QAREGISTER_REPOSITORY_KIND", &cfg.Repository.Kind)
	setString("QAREGISTER_REPOSITORY_ROOT", &cfg.Repository.Root)
	setString("QAREGISTER_GRAPH_BASE_URL", &cfg.Repository.BaseURL)
	setString("QAREGISTER_GRAPH_DRIVE_ID", &cfg.Repository.DriveID)
	setString("QAREGISTER_GRAPH_TOKEN", &cfg.Repository.Token)
	setString("QAREGISTER_LEASE_BACKEND", &cfg.Lease.Backend)
	setString("QAREGISTER_LEASE_DSN", &cfg.Lease.DSN)
	if v := os.Getenv("QAREGISTER_LEASE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QAREGISTER_LEASE_TTL: %w", err)
		}
		cfg.Register.LeaseTTL = Duration(ttl)
	}
	return nil
}

// Validate checks option values that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error
	switch c.Transport.Mode {
	case ModeStdio, ModeHTTP:
	default:
		errs = append(errs, fmt.Errorf("transport.mode must be %q or %q, got %q", ModeStdio, ModeHTTP, c.Transport.Mode))
	}
	switch c.Repository.Kind {
	case RepositoryFilesystem:
		if strings.TrimSpace(c.Repository.Root) == "" {
			errs = append(errs, errors.New("repository.root is required for the filesystem repository"))
		}
	case RepositoryGraph:
		if strings.TrimSpace(c.Repository.DriveID) == "" {
			errs = append(errs, errors.New("repository.drive_id is required for the graph repository"))
		}
	default:
		errs = append(errs, fmt.Errorf("repository.kind must be %q or %q, got %q", RepositoryFilesystem, RepositoryGraph, c.Repository.Kind))
	}
	switch c.Lease.Backend {
	case LeaseSQLite:
	case LeasePostgres:
		if strings.TrimSpace(c.Lease.DSN) == "" {
			errs = append(errs, errors.New("lease.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("lease.backend must be %q or %q, got %q", LeaseSQLite, LeasePostgres, c.Lease.Backend))
	}
	if c.Register.NumberWidth < 1 {
		errs = append(errs, errors.New("register.number_width must be at least 1"))
	}
	if c.Register.LeaseTTL <= 0 {
		errs = append(errs, errors.New("register.lease_ttl must be positive"))
	}
	if len(c.Sync.Backoff) == 0 {
		errs = append(errs, errors.New("sync.backoff must list at least one delay"))
	}
	for i, d := range c.Sync.Backoff {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("sync.backoff[%d] must be positive", i))
		}
	}
	if c.Sync.MaxRetries < 0 {
		errs = append(errs, errors.New("sync.max_retries must not be negative"))
	}
	return errors.Join(errs...)
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
