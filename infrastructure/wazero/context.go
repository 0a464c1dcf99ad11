package wazero

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"github.com/reglet-dev/reglet-fetch/hostfuncs"
)

// GetGuestName returns the guest recorded on ctx, falling back to the
// module name.
func GetGuestName(ctx context.Context, mod api.Module) string {
	if name, ok := hostfuncs.GuestFrom(ctx); ok {
		return name
	}
	return mod.Name()
}

// ResponseEnvelope is the JSON document passed to the guest response export.
type ResponseEnvelope struct {
	Response entities.Response `json:"response"`
	ID       uint64            `json:"id"`
}

// guestResponder delivers one fetch response into a guest module.
// It is only invoked on the host execution context, never concurrently with
// other calls into the same module.
type guestResponder struct {
	ctx    context.Context
	mod    api.Module
	export string
	id     uint64
}

func guestResponderFactory(ctx context.Context, mod api.Module, export string) hostfuncs.ResponderFactory {
	// Responses arrive after the host call that started them has returned.
	ctx = context.WithoutCancel(ctx)
	return func(id uint64) ports.Responder {
		return &guestResponder{ctx: ctx, mod: mod, export: export, id: id}
	}
}

func (r *guestResponder) Respond(resp entities.Response) {
	if r.mod.IsClosed() {
		slog.DebugContext(r.ctx, "wazero: dropping response for closed module", "module", r.mod.Name(), "id", r.id)
		return
	}

	fn := r.mod.ExportedFunction(r.export)
	if fn == nil {
		slog.ErrorContext(r.ctx, "wazero: guest module missing response export", "module", r.mod.Name(), "export", r.export)
		return
	}

	data, err := json.Marshal(ResponseEnvelope{ID: r.id, Response: resp})
	if err != nil {
		slog.ErrorContext(r.ctx, "wazero: failed to marshal response", "id", r.id, "error", err)
		return
	}

	packed, err := WriteGuest(r.ctx, r.mod, data)
	if err != nil {
		slog.ErrorContext(r.ctx, "wazero: failed to write response", "id", r.id, "error", err)
		return
	}
	if _, err := fn.Call(r.ctx, r.id, packed); err != nil {
		slog.ErrorContext(r.ctx, "wazero: guest response export failed", "module", r.mod.Name(), "id", r.id, "error", err)
	}
}
