package hostfuncs

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a ByteHandler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware returns a middleware that catches panics and converts
// them to structured ErrorResponse JSON instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = NewPanicError(r).ToJSON()
					err = nil // Return JSON error, not Go error
				}
			}()
			return next(ctx, payload)
		}
	}
}

// LoggingMiddleware logs each host function call at debug level with the
// calling guest, payload sizes and duration. Failed calls log at warn.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			funcName, guest := "unknown", ""
			if hc, ok := ctx.(HostContext); ok {
				funcName, guest = hc.FunctionName(), hc.Guest()
			}

			start := time.Now()
			resp, err := next(ctx, payload)
			attrs := []any{
				"function", funcName,
				"guest", guest,
				"request_bytes", len(payload),
				"response_bytes", len(resp),
				"duration", time.Since(start),
			}
			if err != nil {
				logger.WarnContext(ctx, "hostfuncs: call failed", append(attrs, "error", err)...)
				return resp, err
			}
			logger.DebugContext(ctx, "hostfuncs: call", attrs...)
			return resp, nil
		}
	}
}
