package log

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("network", event.NetworkID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	switch {
	case event.PDU != nil:
		attrs = append(attrs,
			slog.Int("pdu_size", event.PDU.Size),
			slog.Bool("truncated", event.PDU.Truncated),
		)
	case event.Message != nil:
		m := event.Message
		attrs = append(attrs,
			slog.String("src", fmt.Sprintf("%04X", m.Source)),
			slog.String("dst", fmt.Sprintf("%04X", m.Destination)),
			slog.String("opcode", m.Opcode.String()),
			slog.Uint64("seq", uint64(m.Sequence)),
			slog.Uint64("iv_index", uint64(m.IvIndex)),
			slog.Uint64("ttl", uint64(m.TTL)),
			slog.Uint64("net_key", uint64(m.NetKeyIndex)),
		)
		if m.Name != "" {
			attrs = append(attrs, slog.String("message", m.Name))
		}
		if m.AppKeyIndex != nil {
			attrs = append(attrs, slog.Uint64("app_key", uint64(*m.AppKeyIndex)))
		}
		if m.Status != nil {
			attrs = append(attrs, slog.String("status", m.Status.String()))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
		if event.Error.Source != nil {
			attrs = append(attrs, slog.String("src", fmt.Sprintf("%04X", *event.Error.Source)))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
