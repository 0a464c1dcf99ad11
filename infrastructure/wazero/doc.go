// Package wazero provides adapters for registering fetch host functions with the wazero runtime.
//
// This package bridges the pure Go host function implementations with the wazero
// WebAssembly runtime. It handles:
//
//   - Converting between packed i64 pointer+length format and byte slices
//   - Reading request data from guest memory
//   - Allocating and writing response data to guest memory
//   - Registering handlers with the wazero host module builder
//   - Delivering asynchronous fetch responses into the guest's on_response export
//
// # Basic Usage
//
//	// Create a handler registry with desired bundles
//	bridges := hostfuncs.NewBridgeSet(dispatcher, loop)
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithMiddleware(wazero.FetchPolicyMiddleware(policy)),
//	    hostfuncs.WithBundle(hostfuncs.AllBundles(bridges)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	// Create wazero runtime
//	runtime := wazero.NewRuntime(ctx)
//
//	// Register handlers with the runtime as module "reglet_fetch"
//	err = wazero.RegisterWithRuntime(ctx, runtime, registry)
//
// # Guest ABI
//
// Guests export allocate(size i32) i32 and on_response(id i64, packed i64).
// fetch_start returns {"id": n}; the response later arrives through
// on_response as {"id": n, "response": {...}}.
//
// # Raw Functions
//
// Functions outside the request/response convention are added with
// WithRawFunc. PayloadSink covers the common one-way case:
//
//	wazero.RegisterWithRuntime(ctx, runtime, registry,
//	    wazero.WithRawFunc(wazero.PayloadSink("log_message", max, emit)),
//	)
package wazero
