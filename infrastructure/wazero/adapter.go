package wazero

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/reglet-fetch/hostfuncs"
)

const (
	// DefaultModuleName is the host module guests import from.
	DefaultModuleName = "reglet_fetch"

	// DefaultResponseExport is the guest function called with each response.
	DefaultResponseExport = "on_response"
)

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	ModuleName     string
	ResponseExport string
	RawFuncs       []RawFunc
	MaxRequestSize uint32
}

// RawFunc is a host function exported as-is, outside the packed
// request/response convention of the registry (e.g. log_message).
type RawFunc struct {
	Fn      api.GoModuleFunc
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// PayloadSink builds a RawFunc taking one packed ptr+len argument and
// returning nothing. Payloads larger than maxSize are dropped.
func PayloadSink(name string, maxSize uint32, sink func(ctx context.Context, mod api.Module, payload []byte)) RawFunc {
	return RawFunc{
		Name:   name,
		Params: []api.ValueType{api.ValueTypeI64},
		Fn: func(ctx context.Context, mod api.Module, stack []uint64) {
			ptr, length := UnpackPtrLen(stack[0])
			if length > maxSize {
				slog.WarnContext(ctx, "wazero: payload too large", "function", name, "module", mod.Name(), "size", length)
				return
			}
			if payload, ok := ReadGuest(mod, ptr, length); ok {
				sink(ctx, mod, payload)
			}
		},
	}
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name.
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMaxRequestSize sets the maximum request size read from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxRequestSize = size
	}
}

// WithResponseExport sets the guest export that receives fetch responses.
// An empty name keeps the current one.
func WithResponseExport(name string) AdapterOption {
	return func(c *AdapterConfig) {
		if name != "" {
			c.ResponseExport = name
		}
	}
}

// WithRawFunc adds a host function outside the registry.
func WithRawFunc(f RawFunc) AdapterOption {
	return func(c *AdapterConfig) {
		c.RawFuncs = append(c.RawFuncs, f)
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName:     DefaultModuleName,
		ResponseExport: DefaultResponseExport,
		MaxRequestSize: hostfuncs.DefaultMaxRequestSize,
	}
}

// RegisterWithRuntime instantiates a host module exporting every handler in
// registry as func(i64) i64 over packed ptr+len payloads, plus any RawFuncs.
//
// Calls into fetch_start carry a responder factory bound to the calling
// module, so responses are delivered into its response export after the
// call has returned.
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)
	packed := []api.ValueType{api.ValueTypeI64}

	for _, name := range registry.Names() {
		call := hostCall{registry: registry, name: name, cfg: cfg}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(call.invoke), packed, packed).
			Export(name)
	}
	for _, f := range cfg.RawFuncs {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.Fn, f.Params, f.Results).
			Export(f.Name)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate host module %q: %w", cfg.ModuleName, err)
	}
	return nil
}

// hostCall is one registry handler bound to the guest ABI.
type hostCall struct {
	registry *hostfuncs.HandlerRegistry
	name     string
	cfg      AdapterConfig
}

func (h hostCall) invoke(ctx context.Context, mod api.Module, stack []uint64) {
	ptr, length := UnpackPtrLen(stack[0])
	out := h.handle(ctx, mod, ptr, length)

	packed, err := WriteGuest(ctx, mod, out)
	if err != nil {
		slog.ErrorContext(ctx, "wazero: failed to write response", "function", h.name, "error", err)
		packed = 0
	}
	stack[0] = packed
}

// handle always produces a JSON payload; failures become an ErrorResponse.
func (h hostCall) handle(ctx context.Context, mod api.Module, ptr, length uint32) []byte {
	if length > h.cfg.MaxRequestSize {
		msg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, h.cfg.MaxRequestSize)
		slog.ErrorContext(ctx, "wazero: "+msg, "function", h.name)
		return hostfuncs.NewValidationError(msg).ToJSON()
	}

	req, ok := ReadGuest(mod, ptr, length)
	if !ok {
		slog.ErrorContext(ctx, "wazero: request out of guest memory bounds", "function", h.name, "ptr", ptr, "len", length)
		return hostfuncs.NewInternalError("failed to read request from guest memory").ToJSON()
	}

	if _, ok := hostfuncs.ResponderFactoryFrom(ctx); !ok {
		ctx = hostfuncs.WithResponderFactory(ctx, guestResponderFactory(ctx, mod, h.cfg.ResponseExport))
	}
	ctx = hostfuncs.WithGuest(ctx, GetGuestName(ctx, mod))

	out, err := h.registry.Invoke(ctx, h.name, req)
	if err != nil {
		slog.ErrorContext(ctx, "wazero: handler invocation failed", "function", h.name, "error", err)
		return hostfuncs.NewInternalError(err.Error()).ToJSON()
	}
	return out
}
