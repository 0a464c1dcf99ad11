package log

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ParseLevel maps a slog level name ("DEBUG", "INFO+2", ...) to a level.
// Unknown names map to LevelInfo.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(name)))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Emit re-emits a guest log message on logger, tagged with the guest name.
func Emit(ctx context.Context, logger *slog.Logger, guest string, msg LogMessageWire) {
	level := ParseLevel(msg.Level)
	if !logger.Enabled(ctx, level) {
		return
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	record := slog.NewRecord(ts, level, msg.Message, 0)
	record.AddAttrs(slog.String("guest", guest))
	if msg.FetchID != 0 {
		record.AddAttrs(slog.Uint64("fetch_id", msg.FetchID))
	}
	for _, a := range msg.Attrs {
		record.AddAttrs(fromLogAttrWire(a))
	}
	_ = logger.Handler().Handle(ctx, record)
}

// EmitJSON decodes a LogMessageWire payload and emits it. Payloads that are
// not valid JSON are logged raw at warn level and reported as an error.
func EmitJSON(ctx context.Context, logger *slog.Logger, guest string, payload []byte) error {
	var msg LogMessageWire
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.WarnContext(ctx, "guest log (undecodable)", "guest", guest, "payload", string(payload))
		return fmt.Errorf("decode guest log message: %w", err)
	}
	Emit(ctx, logger, guest, msg)
	return nil
}
