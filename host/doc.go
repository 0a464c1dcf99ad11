// Package host provides the runtime environment for WASM guests that fetch
// files and network resources asynchronously.
//
// It abstracts the underlying WASM engine (wazero), manages guest lifecycle,
// and handles the low-level ABI interactions (memory allocation, data packing/unpacking).
// Every guest call and every response delivery runs on one host loop, so a
// guest never observes two host events at once.
package host
