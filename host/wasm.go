package host

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/reglet-fetch/hostfuncs"
	wazeroadapter "github.com/reglet-dev/reglet-fetch/infrastructure/wazero"
	"github.com/reglet-dev/reglet-fetch/log"
)

func (e *Executor) registerHostFunctions(ctx context.Context) error {
	return wazeroadapter.RegisterWithRuntime(ctx, e.runtime, e.registry,
		wazeroadapter.WithRawFunc(wazeroadapter.PayloadSink("log_message", hostfuncs.DefaultMaxRequestSize, e.logMessage)),
	)
}

// logMessage re-emits a guest log record on the executor's logger.
func (e *Executor) logMessage(ctx context.Context, m api.Module, payload []byte) {
	_ = log.EmitJSON(ctx, e.logger, wazeroadapter.GetGuestName(ctx, m), payload)
}

func (p *PluginInstance) callRaw(ctx context.Context, name string, input []byte) (uint64, error) {
	f := p.module.ExportedFunction(name)
	if f == nil {
		return 0, fmt.Errorf("export %q not found", name)
	}

	var params []uint64
	if len(input) > 0 {
		ptr, err := wazeroadapter.AllocateGuest(ctx, p.module, input)
		if err != nil {
			return 0, err
		}
		params = []uint64{uint64(ptr), uint64(len(input))}
	}

	results, err := f.Call(ctx, params...)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0], nil
}

// readPacked copies a packed ptr+len result out of guest memory.
// A zero result means the export returned nothing.
func (p *PluginInstance) readPacked(packed uint64) ([]byte, error) {
	if packed == 0 {
		return nil, nil
	}
	ptr, length := wazeroadapter.UnpackPtrLen(packed)
	data, ok := wazeroadapter.ReadGuest(p.module, ptr, length)
	if !ok {
		return nil, fmt.Errorf("failed to read response from memory")
	}
	return data, nil
}
