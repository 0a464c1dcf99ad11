package host

import (
	"log/slog"

	"github.com/Masterminds/semver/v3"

	"github.com/reglet-dev/reglet-fetch/filesource"
	"github.com/reglet-dev/reglet-fetch/hostfuncs"
	"github.com/reglet-dev/reglet-fetch/hostloop"
	wazeroadapter "github.com/reglet-dev/reglet-fetch/infrastructure/wazero"
)

// Option defines a functional option for configuring the Executor.
type Option func(*executorConfig)

type executorConfig struct {
	logger           *slog.Logger
	policy           wazeroadapter.FetchPolicy
	abiConstraints   *semver.Constraints
	abiConstraint    string
	registryOpts     []hostfuncs.RegistryOption
	dispatcherOpts   []filesource.Option
	loopOpts         []hostloop.Option
	memoryLimitPages uint32
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger:        slog.Default(),
		abiConstraint: DefaultABIConstraint,
	}
}

// WithHostFunctions registers additional host functions next to the fetch bundle.
func WithHostFunctions(opts ...hostfuncs.RegistryOption) Option {
	return func(c *executorConfig) {
		c.registryOpts = append(c.registryOpts, opts...)
	}
}

// WithDispatcherOptions configures the dispatcher requests run on, including
// which fetchers serve which resource kinds.
func WithDispatcherOptions(opts ...filesource.Option) Option {
	return func(c *executorConfig) {
		c.dispatcherOpts = append(c.dispatcherOpts, opts...)
	}
}

// WithLoopOptions configures the host loop.
func WithLoopOptions(opts ...hostloop.Option) Option {
	return func(c *executorConfig) {
		c.loopOpts = append(c.loopOpts, opts...)
	}
}

// WithFetchPolicy restricts what guests may fetch.
func WithFetchPolicy(p wazeroadapter.FetchPolicy) Option {
	return func(c *executorConfig) {
		c.policy = p
	}
}

// WithABIConstraint sets the semver constraint guest ABI versions must
// satisfy. An empty constraint disables the check.
func WithABIConstraint(constraint string) Option {
	return func(c *executorConfig) {
		c.abiConstraint = constraint
	}
}

// WithMemoryLimitPages caps guest linear memory, in 64KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// WithLogger sets the logger for the executor and everything it owns.
func WithLogger(l *slog.Logger) Option {
	return func(c *executorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
