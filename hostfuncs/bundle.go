package hostfuncs

import (
	"context"
)

// HostFuncBundle is a pre-configured set of related host functions.
// Bundles allow registering multiple handlers at once for common use cases.
type HostFuncBundle interface {
	// Handlers returns a map of handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

// staticBundle implements HostFuncBundle with a fixed set of handlers.
type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return b.handlers
}

// SSRFCheckRequest is the request type for SSRF validation.
type SSRFCheckRequest struct {
	// Address is the target address to validate (host:port format).
	Address string `json:"address"`
}

// SSRFCheckResponse is the response type for SSRF validation.
type SSRFCheckResponse struct {
	// Reason explains why the address was blocked (if not allowed).
	Reason string `json:"reason,omitempty"`

	// ResolvedIP is the resolved IP address if DNS resolution was performed.
	ResolvedIP string `json:"resolved_ip,omitempty"`

	// Allowed indicates whether the address is safe for outbound connections.
	Allowed bool `json:"allowed"`
}

// NetfilterBundle returns a bundle with network security host functions:
// ssrf_check.
func NetfilterBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			"ssrf_check": NewJSONHandler(func(ctx context.Context, req SSRFCheckRequest) SSRFCheckResponse {
				result := ValidateAddress(ctx, req.Address)
				return SSRFCheckResponse(result) // Type conversion since fields match
			}),
		},
	}
}

// compositeBundle combines multiple bundles into one.
type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Handlers() map[string]ByteHandler {
	result := make(map[string]ByteHandler)
	for _, bundle := range b.bundles {
		for name, handler := range bundle.Handlers() {
			result[name] = handler
		}
	}
	return result
}

// AllBundles returns a bundle containing all built-in host functions.
// Includes: fetch_start, fetch_release, ssrf_check.
func AllBundles(set *BridgeSet) HostFuncBundle {
	return &compositeBundle{
		bundles: []HostFuncBundle{
			FetchBundle(set),
			NetfilterBundle(),
		},
	}
}

// WithBundle registers all handlers from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for name, handler := range bundle.Handlers() {
			if err := b.addHandler(name, handler); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

// WithHandler registers a typed host function with automatic JSON handling.
// The handler will be wrapped with NewJSONHandler for JSON serialization.
//
// Example usage:
//
//	WithHandler("cache_lookup", func(ctx context.Context, req LookupRequest) LookupResponse {
//	    return LookupResponse{Hit: cache.Has(req.URL)}
//	})
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		handler := NewJSONHandler(fn)
		if err := b.addHandler(name, handler); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}
