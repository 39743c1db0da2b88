package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/progress"
)

// LogSink writes each progress event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Consume logs each event in the batch. Batch boundaries log at info and
// per-input events at debug.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("batch_id", evt.BatchID),
			zap.String("stage", string(evt.Stage)),
			zap.Duration("dur", evt.Dur),
		}
		switch evt.Stage {
		case progress.StageInputDone:
			fields = append(fields,
				zap.String("input", evt.Input),
				zap.String("route", evt.Route),
				zap.String("site", evt.Site),
				zap.String("status", evt.Status),
				zap.Int("decks", evt.Decks),
				zap.Int("warnings", evt.Warnings),
			)
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
			s.logger.Debug("progress event", fields...)
		default:
			if evt.Inputs > 0 {
				fields = append(fields, zap.Int("inputs", evt.Inputs))
			}
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
