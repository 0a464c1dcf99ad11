// Package config loads host configuration and turns it into component options.
//
// Configuration is YAML decoded over entities.DefaultConfig, so a file only
// names what it changes. Loaded configs are validated before use.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/errors"
	"github.com/reglet-dev/reglet-fetch/filesource"
	"github.com/reglet-dev/reglet-fetch/host"
	"github.com/reglet-dev/reglet-fetch/hostfuncs"
	"github.com/reglet-dev/reglet-fetch/hostloop"
	"github.com/reglet-dev/reglet-fetch/infrastructure/parser"
	wazeroadapter "github.com/reglet-dev/reglet-fetch/infrastructure/wazero"
	hostlog "github.com/reglet-dev/reglet-fetch/log"
)

// Parse decodes and validates YAML configuration. Unknown fields are errors.
func Parse(data []byte) (*entities.Config, error) {
	cfg, err := parser.NewYamlConfigParser(true).Parse(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*entities.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks struct constraints and the guest ABI constraint syntax.
func Validate(cfg *entities.Config) error {
	if cfg == nil {
		return &errors.ConfigError{Err: fmt.Errorf("config is nil")}
	}
	if err := entities.Validate(cfg).Err(); err != nil {
		return &errors.ConfigError{Err: err}
	}
	if c := cfg.Guest.ABIConstraint; c != "" {
		if _, err := semver.NewConstraint(c); err != nil {
			return &errors.ConfigError{Field: "guest.abi_constraint", Err: err}
		}
	}
	return nil
}

// NewLogger builds the host logger described by cfg, writing to w.
func NewLogger(cfg entities.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: hostlog.ParseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// HTTPOptions converts the HTTP section into network fetcher options.
func HTTPOptions(cfg entities.HTTPConfig) []hostfuncs.HTTPOption {
	opts := []hostfuncs.HTTPOption{
		hostfuncs.WithHTTPRequestTimeout(cfg.Timeout),
		hostfuncs.WithHTTPMaxBodySize(cfg.MaxBodySize),
		hostfuncs.WithHTTPMaxRedirects(cfg.MaxRedirects),
		hostfuncs.WithHTTPUserAgent(cfg.UserAgent),
		hostfuncs.WithHTTP3(cfg.HTTP3),
	}
	if cfg.SSRFProtection {
		opts = append(opts, hostfuncs.WithHTTPSSRFProtection(cfg.AllowPrivate))
	}
	return opts
}

// FileOptions converts the files section into file fetcher options.
func FileOptions(cfg entities.FilesConfig) []hostfuncs.FileOption {
	opts := []hostfuncs.FileOption{hostfuncs.WithFileMaxSize(cfg.MaxSize)}
	if cfg.Root != "" {
		opts = append(opts, hostfuncs.WithFileRoot(cfg.Root))
	}
	return opts
}

// DispatcherOptions returns the dispatcher options for cfg, including both fetchers.
func DispatcherOptions(cfg *entities.Config, logger *slog.Logger) []filesource.Option {
	return []filesource.Option{
		filesource.WithMaxConcurrent(cfg.Dispatcher.MaxConcurrent),
		filesource.WithLogger(logger),
		filesource.WithFileFetcher(FileOptions(cfg.Files)...),
		filesource.WithNetworkFetcher(HTTPOptions(cfg.HTTP)...),
	}
}

// LoopOptions returns the host loop options for cfg.
func LoopOptions(cfg *entities.Config, logger *slog.Logger) []hostloop.Option {
	return []hostloop.Option{
		hostloop.WithCapacity(cfg.Loop.Capacity),
		hostloop.WithBatchSize(cfg.Loop.BatchSize),
		hostloop.WithLogger(logger),
	}
}

// Policy returns the guest fetch policy, or nil when guests are unrestricted.
func Policy(cfg entities.GuestConfig) wazeroadapter.FetchPolicy {
	if len(cfg.AllowHosts) == 0 && len(cfg.AllowPaths) == 0 {
		return nil
	}
	return wazeroadapter.PatternPolicy{Hosts: cfg.AllowHosts, Paths: cfg.AllowPaths}
}

// ExecutorOptions returns everything host.NewExecutor needs for cfg.
func ExecutorOptions(cfg *entities.Config, logger *slog.Logger) []host.Option {
	opts := []host.Option{
		host.WithLogger(logger),
		host.WithLoopOptions(LoopOptions(cfg, logger)...),
		host.WithDispatcherOptions(DispatcherOptions(cfg, logger)...),
		host.WithABIConstraint(cfg.Guest.ABIConstraint),
		host.WithMemoryLimitPages(cfg.Guest.MemoryLimitPages),
	}
	if p := Policy(cfg.Guest); p != nil {
		opts = append(opts, host.WithFetchPolicy(p))
	}
	return opts
}
