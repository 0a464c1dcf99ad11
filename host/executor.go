package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/reglet-dev/reglet-fetch/bridge"
	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"github.com/reglet-dev/reglet-fetch/filesource"
	"github.com/reglet-dev/reglet-fetch/hostfuncs"
	"github.com/reglet-dev/reglet-fetch/hostloop"
	wazeroadapter "github.com/reglet-dev/reglet-fetch/infrastructure/wazero"
)

// Executor hosts WASM guests that fetch resources asynchronously.
//
// It owns the host loop every guest call and every response delivery runs
// on, the dispatcher that performs the I/O, and the set of bridges guests
// have open.
type Executor struct {
	runtime  wazero.Runtime
	registry *hostfuncs.HandlerRegistry
	loop     *hostloop.Loop
	fs       *filesource.Dispatcher
	bridges  *hostfuncs.BridgeSet
	logger   *slog.Logger
	cfg      executorConfig
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.compileABIConstraint(); err != nil {
		return nil, err
	}

	e := &Executor{
		cfg:    cfg,
		logger: cfg.logger,
		loop:   hostloop.New(append([]hostloop.Option{hostloop.WithLogger(cfg.logger)}, cfg.loopOpts...)...),
		fs:     filesource.New(append([]filesource.Option{filesource.WithLogger(cfg.logger)}, cfg.dispatcherOpts...)...),
	}
	e.bridges = hostfuncs.NewBridgeSet(e.fs, e.loop, bridge.WithLogger(cfg.logger))

	regOpts := []hostfuncs.RegistryOption{
		hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware(), hostfuncs.LoggingMiddleware(cfg.logger)),
	}
	if cfg.policy != nil {
		regOpts = append(regOpts, hostfuncs.WithMiddleware(wazeroadapter.FetchPolicyMiddleware(cfg.policy)))
	}
	regOpts = append(regOpts, hostfuncs.WithBundle(hostfuncs.AllBundles(e.bridges)))
	regOpts = append(regOpts, cfg.registryOpts...)

	reg, err := hostfuncs.NewRegistry(regOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	e.registry = reg

	go func() {
		if err := e.loop.Run(context.Background()); err != nil {
			e.logger.Error("host: loop exited", "error", err)
		}
	}()

	rtCfg := wazero.NewRuntimeConfig().WithCustomSections(true).WithCloseOnContextDone(true)
	if cfg.memoryLimitPages > 0 {
		rtCfg = rtCfg.WithMemoryLimitPages(cfg.memoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	e.runtime = rt

	if err := e.registerHostFunctions(ctx); err != nil {
		_ = e.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return e, nil
}

// Registry returns the host function registry exposed to guests.
func (e *Executor) Registry() *hostfuncs.HandlerRegistry {
	return e.registry
}

// Loop returns the host loop.
func (e *Executor) Loop() *hostloop.Loop {
	return e.loop
}

// Dispatcher returns the file source requests run on.
func (e *Executor) Dispatcher() *filesource.Dispatcher {
	return e.fs
}

// Fetch starts a request on behalf of host code and returns the owning
// reference. src.Respond runs on the host loop. Dropping the reference
// without releasing it cancels the request once it is garbage collected.
func (e *Executor) Fetch(ctx context.Context, res entities.Resource, src ports.Responder) (*bridge.Ref, error) {
	var ref *bridge.Ref
	err := e.loop.Do(ctx, func() error {
		ref = bridge.NewRef(bridge.New(e.loop, src, e.fs, res, bridge.WithLogger(e.logger)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("start fetch: %w", err)
	}
	return ref, nil
}

// Close tears down every open bridge, waits for in-flight requests and
// releases the runtime.
func (e *Executor) Close(ctx context.Context) error {
	e.bridges.Close()
	var errs []error
	if err := e.fs.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	e.loop.Stop()
	if e.runtime != nil {
		if err := e.runtime.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}

// PluginInstance represents an instantiated WASM guest.
type PluginInstance struct {
	module  api.Module
	exec    *Executor
	Version string
}

// LoadPlugin compiles and instantiates a guest module under name after
// checking its declared ABI version.
func (e *Executor) LoadPlugin(ctx context.Context, name string, wasmBytes []byte) (*PluginInstance, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}

	version, err := e.cfg.checkABI(name, compiled)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	var mod api.Module
	err = e.loop.Do(ctx, func() error {
		modCfg := wazero.NewModuleConfig().WithName(name).WithStartFunctions()
		m, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
		if err != nil {
			return fmt.Errorf("failed to instantiate module: %w", err)
		}
		if init := m.ExportedFunction("_initialize"); init != nil {
			if _, err := init.Call(ctx); err != nil {
				_ = m.Close(ctx)
				return fmt.Errorf("failed to call _initialize: %w", err)
			}
		}
		mod = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "host: loaded guest", "guest", name, "abi_version", version)
	return &PluginInstance{module: mod, exec: e, Version: version}, nil
}

// Name returns the guest module name.
func (p *PluginInstance) Name() string {
	return p.module.Name()
}

// Call invokes a guest export on the host loop. input is written to guest
// memory and passed as (ptr, len); a packed ptr+len result is read back.
func (p *PluginInstance) Call(ctx context.Context, export string, input []byte) ([]byte, error) {
	var out []byte
	err := p.exec.loop.Do(ctx, func() error {
		packed, err := p.callRaw(ctx, export, input)
		if err != nil {
			return err
		}
		out, err = p.readPacked(packed)
		return err
	})
	return out, err
}

// Close closes the guest module. Responses still in flight for it are dropped.
func (p *PluginInstance) Close(ctx context.Context) error {
	return p.exec.loop.Do(ctx, func() error {
		return p.module.Close(ctx)
	})
}
