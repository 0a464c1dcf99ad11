// Package log carries structured log records (slog) from WASM guests to the host.
//
// Guests send a LogMessageWire through the log_message host function; the
// host re-emits it on its own slog.Logger with Emit.
package log

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// LogMessageWire is the JSON wire format for a log message from Guest to Host.
type LogMessageWire struct {
	Timestamp time.Time     `json:"timestamp"`
	Attrs     []LogAttrWire `json:"attrs,omitempty"`
	Level     string        `json:"level"`
	Message   string        `json:"message"`
	// FetchID ties the message to a fetch_start id; zero when unrelated.
	FetchID uint64 `json:"fetch_id,omitempty"`
}

// LogAttrWire is a single flattened slog attribute.
type LogAttrWire struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// EncodeRecord converts a slog.Record to its wire form.
func EncodeRecord(record slog.Record) LogMessageWire {
	msg := LogMessageWire{
		Timestamp: record.Time,
		Level:     record.Level.String(),
		Message:   record.Message,
	}
	record.Attrs(func(attr slog.Attr) bool {
		msg.Attrs = append(msg.Attrs, toLogAttrWire(attr))
		return true
	})
	return msg
}

func toLogAttrWire(attr slog.Attr) LogAttrWire {
	v := attr.Value.Resolve()
	w := LogAttrWire{Key: attr.Key}

	switch v.Kind() {
	case slog.KindString:
		w.Type, w.Value = "string", v.String()
	case slog.KindInt64:
		w.Type, w.Value = "int64", strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		w.Type, w.Value = "uint64", strconv.FormatUint(v.Uint64(), 10)
	case slog.KindBool:
		w.Type, w.Value = "bool", strconv.FormatBool(v.Bool())
	case slog.KindFloat64:
		w.Type, w.Value = "float64", strconv.FormatFloat(v.Float64(), 'f', 6, 64)
	case slog.KindTime:
		w.Type, w.Value = "time", v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		w.Type, w.Value = "duration", v.Duration().String()
	case slog.KindGroup:
		// Groups are not nested on the wire.
		w.Type, w.Value = "group", v.String()
	default:
		w.Type, w.Value = encodeAny(v.Any())
	}
	return w
}

func encodeAny(v any) (string, string) {
	switch x := v.(type) {
	case nil:
		return "any", "<nil>"
	case error:
		return "error", x.Error()
	}
	if data, err := json.Marshal(v); err == nil {
		return "json", string(data)
	}
	return "any", fmt.Sprintf("%v", v)
}

// fromLogAttrWire restores a typed slog.Attr where the wire type allows it.
// Values that fail to parse are kept as strings.
func fromLogAttrWire(w LogAttrWire) slog.Attr {
	switch w.Type {
	case "int64":
		if n, err := strconv.ParseInt(w.Value, 10, 64); err == nil {
			return slog.Int64(w.Key, n)
		}
	case "uint64":
		if n, err := strconv.ParseUint(w.Value, 10, 64); err == nil {
			return slog.Uint64(w.Key, n)
		}
	case "bool":
		if b, err := strconv.ParseBool(w.Value); err == nil {
			return slog.Bool(w.Key, b)
		}
	case "float64":
		if f, err := strconv.ParseFloat(w.Value, 64); err == nil {
			return slog.Float64(w.Key, f)
		}
	case "time":
		if t, err := time.Parse(time.RFC3339Nano, w.Value); err == nil {
			return slog.Time(w.Key, t)
		}
	case "duration":
		if d, err := time.ParseDuration(w.Value); err == nil {
			return slog.Duration(w.Key, d)
		}
	case "json":
		return slog.Any(w.Key, json.RawMessage(w.Value))
	}
	return slog.String(w.Key, w.Value)
}
