package wazero

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// AllocateExport is the guest export the host calls to reserve memory.
const AllocateExport = "allocate"

// PackPtrLen packs a guest pointer into the upper 32 bits and a length into
// the lower 32 bits of an i64.
func PackPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// UnpackPtrLen reverses PackPtrLen.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed) //nolint:gosec // G115: packed halves are 32-bit
}

// ReadGuest copies length bytes at ptr out of the module's memory. The
// copy is owned by the caller; the guest may reuse its buffer afterwards.
func ReadGuest(mod api.Module, ptr, length uint32) ([]byte, bool) {
	view, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), view...), true
}

// AllocateGuest reserves len(data) bytes through the guest's allocate export
// and copies data into them.
func AllocateGuest(ctx context.Context, mod api.Module, data []byte) (uint32, error) {
	alloc := mod.ExportedFunction(AllocateExport)
	if alloc == nil {
		return 0, fmt.Errorf("guest module %q does not export %q", mod.Name(), AllocateExport)
	}
	results, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("call guest %s: %w", AllocateExport, err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("guest %s returned no results", AllocateExport)
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit
	if !mod.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("write %d bytes at %#x: out of range", len(data), ptr)
	}
	return ptr, nil
}

// WriteGuest is AllocateGuest returning the packed ptr+len form.
func WriteGuest(ctx context.Context, mod api.Module, data []byte) (uint64, error) {
	ptr, err := AllocateGuest(ctx, mod, data)
	if err != nil {
		return 0, err
	}
	return PackPtrLen(ptr, uint32(len(data))), nil //nolint:gosec // G115: bounded by guest memory
}
