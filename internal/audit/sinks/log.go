package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/alsamah-store/storefront-edge/internal/audit"
)

// LogSink writes one structured log line per edge event. It is useful during
// development or when no durable sink is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []audit.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("event_id", evt.ID.String()),
			zap.String("decision", string(evt.Decision)),
			zap.String("handler", evt.Handler),
			zap.String("reason", evt.Reason),
			zap.String("path", evt.Path),
			zap.String("agent", evt.Agent),
			zap.String("agent_kind", evt.AgentKind),
			zap.Int("upstream_status", evt.UpstreamStatus),
			zap.Int64("bytes", evt.Bytes),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Engine != "" {
			fields = append(fields, zap.String("engine", evt.Engine))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("edge decision", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
