package entities

import (
	"time"
)

// Config represents fetch host configuration.
// Zero values in a loaded file are replaced by DefaultConfig values.
type Config struct {
	// Log controls host logging.
	Log LogConfig `json:"log" yaml:"log"`

	// Loop bounds the host execution context.
	Loop LoopConfig `json:"loop" yaml:"loop"`

	// Dispatcher bounds the I/O subsystem.
	Dispatcher DispatcherConfig `json:"dispatcher" yaml:"dispatcher"`

	// HTTP configures the network fetcher.
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Files configures the file fetcher.
	Files FilesConfig `json:"files" yaml:"files"`

	// Guest configures WASM guests and what they may fetch.
	Guest GuestConfig `json:"guest" yaml:"guest"`
}

// LogConfig controls host logging.
type LogConfig struct {
	// Level is the logging verbosity level (e.g., "debug", "info", "warn", "error").
	Level string `json:"level,omitempty" yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty" yaml:"format" validate:"omitempty,oneof=text json"`
}

// LoopConfig bounds the host loop.
type LoopConfig struct {
	// Capacity is the maximum number of queued host tasks; 0 is unbounded.
	Capacity int `json:"capacity" yaml:"capacity" validate:"gte=0"`

	// BatchSize is how many tasks run per wake-up.
	BatchSize int `json:"batch_size" yaml:"batch_size" validate:"gte=0"`
}

// DispatcherConfig bounds the I/O subsystem.
type DispatcherConfig struct {
	// MaxConcurrent is the number of fetches that may run at once.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" validate:"gte=1,lte=4096"`
}

// HTTPConfig configures the network fetcher.
type HTTPConfig struct {
	// UserAgent is sent with every request.
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent"`

	// Timeout bounds a single request, e.g. "30s".
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`

	// MaxBodySize is the largest accepted response body in bytes.
	MaxBodySize int64 `json:"max_body_size" yaml:"max_body_size" validate:"gte=0"`

	// MaxRedirects is the maximum number of redirects to follow.
	MaxRedirects int `json:"max_redirects" yaml:"max_redirects" validate:"gte=0"`

	// SSRFProtection pins DNS and blocks reserved addresses.
	SSRFProtection bool `json:"ssrf_protection" yaml:"ssrf_protection"`

	// AllowPrivate permits private addresses when SSRFProtection is on.
	AllowPrivate bool `json:"allow_private" yaml:"allow_private"`

	// HTTP3 sends every https request over QUIC.
	HTTP3 bool `json:"http3" yaml:"http3"`
}

// FilesConfig configures the file fetcher.
type FilesConfig struct {
	// Root confines file resources to a directory.
	Root string `json:"root,omitempty" yaml:"root"`

	// MaxSize is the largest file that will be read, in bytes.
	MaxSize int64 `json:"max_size" yaml:"max_size" validate:"gte=0"`
}

// GuestConfig configures WASM guests.
type GuestConfig struct {
	// ABIConstraint is the semver constraint guest ABI versions must satisfy.
	ABIConstraint string `json:"abi_constraint,omitempty" yaml:"abi_constraint"`

	// AllowHosts lists host globs guests may fetch from. Guests are
	// unrestricted while both lists are empty; once either is set, an empty
	// list denies that resource kind.
	AllowHosts []string `json:"allow_hosts,omitempty" yaml:"allow_hosts" validate:"omitempty,dive,required"`

	// AllowPaths lists directories guests may read.
	AllowPaths []string `json:"allow_paths,omitempty" yaml:"allow_paths" validate:"omitempty,dive,required"`

	// MemoryLimitPages caps guest memory in 64KiB pages; 0 keeps the runtime default.
	MemoryLimitPages uint32 `json:"memory_limit_pages" yaml:"memory_limit_pages" validate:"lte=65536"`
}

// DefaultConfig returns the default host configuration.
func DefaultConfig() Config {
	return Config{
		Log:        LogConfig{Level: "info", Format: "text"},
		Loop:       LoopConfig{Capacity: 4096, BatchSize: 64},
		Dispatcher: DispatcherConfig{MaxConcurrent: 32},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			MaxBodySize:  10 * 1024 * 1024,
			MaxRedirects: 10,
		},
		Files: FilesConfig{MaxSize: 64 * 1024 * 1024},
		Guest: GuestConfig{ABIConstraint: "^1.0.0"},
	}
}

// ConfigOption is a functional option for configuring host settings.
type ConfigOption func(*Config)

// WithLogLevel sets the logging verbosity level.
func WithLogLevel(level string) ConfigOption {
	return func(c *Config) {
		c.Log.Level = level
	}
}

// WithMaxConcurrent sets the dispatcher concurrency limit.
func WithMaxConcurrent(n int) ConfigOption {
	return func(c *Config) {
		if n > 0 {
			c.Dispatcher.MaxConcurrent = n
		}
	}
}

// WithHTTPTimeout sets the network fetch timeout.
func WithHTTPTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		if d > 0 {
			c.HTTP.Timeout = d
		}
	}
}

// WithFileRoot confines file resources to dir.
func WithFileRoot(dir string) ConfigOption {
	return func(c *Config) {
		c.Files.Root = dir
	}
}

// NewConfig creates a new Config with the given options.
func NewConfig(opts ...ConfigOption) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
