// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path
// from.
const EnvVar = "TESSERA_CONFIG"

// Environment is the deployment type. It selects which override
// section of the file applies.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the node configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths     PathsConfig     `yaml:"paths"`
	Frontend  FrontendConfig  `yaml:"frontend"`
	Peer      PeerConfig      `yaml:"peer"`
	Store     StoreConfig     `yaml:"store"`
	Processor ProcessorConfig `yaml:"processor"`
	Publish   PublishConfig   `yaml:"publish"`
	Log       LogConfig       `yaml:"log"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the fields an environment section may replace.
// Pointer booleans distinguish "unset" from "false".
type Overrides struct {
	Paths     *PathsConfig        `yaml:"paths,omitempty"`
	Store     *StoreOverrides     `yaml:"store,omitempty"`
	Processor *ProcessorOverrides `yaml:"processor,omitempty"`
	Log       *LogConfig          `yaml:"log,omitempty"`
}

type StoreOverrides struct {
	Backend    string `yaml:"backend,omitempty"`
	SyncWrites *bool  `yaml:"sync_writes,omitempty"`
}

type ProcessorOverrides struct {
	VerifyAfterWrite *bool `yaml:"verify_after_write,omitempty"`
}

// PathsConfig locates node state on disk.
type PathsConfig struct {
	// Root is the base directory. The other paths default to
	// subdirectories of it.
	Root string `yaml:"root"`

	// Chunks holds one directory of chunk files per content id.
	Chunks string `yaml:"chunks"`

	// Database is the record store directory. The sqlite backend
	// keeps records.sqlite inside it.
	Database string `yaml:"database"`

	// KeyFile holds the node identity. Generated on first start.
	KeyFile string `yaml:"key_file"`
}

// FrontendConfig configures the publish socket.
type FrontendConfig struct {
	// Listen is "tcp://host:port", "host:port", or a Unix socket
	// path.
	Listen string `yaml:"listen"`

	// MaxRequestSize bounds a request, including inline content.
	MaxRequestSize int64 `yaml:"max_request_size"`
}

// PeerConfig configures the peer HTTP listener.
type PeerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	// Backend is "badger" or "sqlite".
	Backend    string `yaml:"backend"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// ProcessorConfig tunes file processing.
type ProcessorConfig struct {
	ChunkSize        int    `yaml:"chunk_size"`
	Parallelism      int    `yaml:"parallelism"`
	MinFreeBytes     uint64 `yaml:"min_free_bytes"`
	VerifyAfterWrite bool   `yaml:"verify_after_write"`
}

// PublishConfig tunes the handoff from the front-end to the store.
type PublishConfig struct {
	// QueueCapacity is the number of processed results buffered
	// ahead of the persister.
	QueueCapacity int `yaml:"queue_capacity"`

	// WaitTimeout bounds how long a publish request with wait set
	// blocks for persistence, as a Go duration string.
	WaitTimeout string `yaml:"wait_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration a file is merged onto.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".local", "share", "tessera")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:     root,
			Chunks:   "${TESSERA_ROOT}/chunks",
			Database: "${TESSERA_ROOT}/db",
			KeyFile:  "${TESSERA_ROOT}/node.key",
		},
		Frontend: FrontendConfig{
			Listen:         "127.0.0.1:7420",
			MaxRequestSize: 64 << 20,
		},
		Peer: PeerConfig{
			Enabled: true,
			Listen:  "0.0.0.0:7421",
		},
		Store: StoreConfig{
			Backend:    "badger",
			SyncWrites: true,
		},
		Processor: ProcessorConfig{
			ChunkSize:    256 << 10,
			Parallelism:  4,
			MinFreeBytes: 64 << 20,
		},
		Publish: PublishConfig{
			QueueCapacity: 64,
			WaitTimeout:   "30s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the file named by TESSERA_CONFIG. There is no search
// path: if the variable is unset, Load fails.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your tessera.yaml or pass --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads path over Default, applies the section for the
// configured environment, and expands variables in path fields.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.ExpandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			// Production without its own section still gets the
			// durable settings.
			on := true
			overrides = &Overrides{
				Store:     &StoreOverrides{SyncWrites: &on},
				Processor: &ProcessorOverrides{VerifyAfterWrite: &on},
			}
		}
	}
	if overrides == nil {
		return
	}

	if paths := overrides.Paths; paths != nil {
		if paths.Root != "" {
			c.Paths.Root = paths.Root
		}
		if paths.Chunks != "" {
			c.Paths.Chunks = paths.Chunks
		}
		if paths.Database != "" {
			c.Paths.Database = paths.Database
		}
		if paths.KeyFile != "" {
			c.Paths.KeyFile = paths.KeyFile
		}
	}
	if store := overrides.Store; store != nil {
		if store.Backend != "" {
			c.Store.Backend = store.Backend
		}
		if store.SyncWrites != nil {
			c.Store.SyncWrites = *store.SyncWrites
		}
	}
	if processor := overrides.Processor; processor != nil && processor.VerifyAfterWrite != nil {
		c.Processor.VerifyAfterWrite = *processor.VerifyAfterWrite
	}
	if log := overrides.Log; log != nil {
		if log.Level != "" {
			c.Log.Level = log.Level
		}
		if log.Format != "" {
			c.Log.Format = log.Format
		}
	}
}

// ExpandVariables expands ${HOME}, ${TESSERA_ROOT}, and
// ${VAR:-default} in path fields. Root is expanded first so the other
// paths can refer to it.
func (c *Config) ExpandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["TESSERA_ROOT"] = c.Paths.Root

	c.Paths.Chunks = expandVars(c.Paths.Chunks, vars)
	c.Paths.Database = expandVars(c.Paths.Database, vars)
	c.Paths.KeyFile = expandVars(c.Paths.KeyFile, vars)
	c.Frontend.Listen = expandVars(c.Frontend.Listen, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if c.Paths.Chunks == "" {
		errs = append(errs, errors.New("paths.chunks is required"))
	}
	if c.Paths.Database == "" {
		errs = append(errs, errors.New("paths.database is required"))
	}
	if c.Frontend.Listen == "" {
		errs = append(errs, errors.New("frontend.listen is required"))
	}
	if c.Frontend.MaxRequestSize <= 0 {
		errs = append(errs, errors.New("frontend.max_request_size must be positive"))
	}
	if c.Peer.Enabled {
		if c.Peer.Listen == "" {
			errs = append(errs, errors.New("peer.listen is required when the peer is enabled"))
		}
		if c.Paths.KeyFile == "" {
			errs = append(errs, errors.New("paths.key_file is required when the peer is enabled"))
		}
	}
	switch c.Store.Backend {
	case "badger", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.backend must be badger or sqlite, got %q", c.Store.Backend))
	}
	if c.Processor.ChunkSize < 0 {
		errs = append(errs, errors.New("processor.chunk_size must not be negative"))
	}
	if c.Processor.Parallelism < 0 {
		errs = append(errs, errors.New("processor.parallelism must not be negative"))
	}
	if c.Publish.QueueCapacity <= 0 {
		errs = append(errs, errors.New("publish.queue_capacity must be positive"))
	}
	if _, err := c.WaitTimeout(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// WaitTimeout parses Publish.WaitTimeout. Empty means no limit.
func (c *Config) WaitTimeout() (time.Duration, error) {
	if c.Publish.WaitTimeout == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(c.Publish.WaitTimeout)
	if err != nil {
		return 0, fmt.Errorf("publish.wait_timeout: %w", err)
	}
	if timeout < 0 {
		return 0, fmt.Errorf("publish.wait_timeout must not be negative, got %s", timeout)
	}
	return timeout, nil
}

// EnsurePaths creates the root and chunks directories and the parent
// of the key file.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.Chunks, filepath.Dir(c.Paths.KeyFile)} {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
