package filesource

import (
	"log/slog"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"github.com/reglet-dev/reglet-fetch/hostfuncs"
)

// Option configures a Dispatcher.
type Option func(*config)

type config struct {
	fetchers      map[entities.ResourceKind]ports.Fetcher
	logger        *slog.Logger
	maxConcurrent int64
}

func defaultConfig() config {
	return config{
		fetchers:      make(map[entities.ResourceKind]ports.Fetcher),
		logger:        slog.Default(),
		maxConcurrent: DefaultMaxConcurrent,
	}
}

// WithFetcher serves resources of the given kind with f.
func WithFetcher(kind entities.ResourceKind, f ports.Fetcher) Option {
	return func(c *config) {
		c.fetchers[kind] = f
	}
}

// WithFileFetcher serves file resources from the local filesystem.
func WithFileFetcher(opts ...hostfuncs.FileOption) Option {
	return WithFetcher(entities.ResourceKindFile, hostfuncs.NewFileFetcher(opts...))
}

// WithNetworkFetcher serves network resources over HTTP.
func WithNetworkFetcher(opts ...hostfuncs.HTTPOption) Option {
	return WithFetcher(entities.ResourceKindNetwork, hostfuncs.NewHTTPFetcher(opts...))
}

// WithMaxConcurrent bounds the number of fetches running at once.
func WithMaxConcurrent(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxConcurrent = int64(n)
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
