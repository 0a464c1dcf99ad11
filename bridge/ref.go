package bridge

import (
	"runtime"

	"code.hybscloud.com/atomix"
)

// Ref is the host's owning reference to a Bridge. When the garbage collector
// reclaims an unreleased Ref, the bridge is torn down.
type Ref struct {
	bridge   *Bridge
	cleanup  runtime.Cleanup
	released atomix.Uint32
}

// NewRef wraps b in a host-owned reference.
func NewRef(b *Bridge) *Ref {
	r := &Ref{bridge: b}
	r.cleanup = runtime.AddCleanup(r, (*Bridge).Teardown, b)
	return r
}

// Bridge returns the referenced bridge.
func (r *Ref) Bridge() *Bridge {
	return r.bridge
}

// Release tears the bridge down immediately. It is idempotent.
func (r *Ref) Release() {
	if !r.released.CompareAndSwap(0, 1) {
		return
	}
	r.cleanup.Stop()
	r.bridge.Teardown()
}
