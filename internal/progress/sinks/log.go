package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/comic-archiver/internal/comics"
	"github.com/JakeFAU/comic-archiver/internal/progress"
)

// LogSink writes one structured line per event. Failed items log at warn.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		level := zapcore.DebugLevel
		switch evt.Stage {
		case progress.StageRunStart:
			fields = append(fields, zap.Int("total", evt.Total))
			level = zapcore.InfoLevel
		case progress.StageRunDone:
			fields = append(fields, zap.Duration("elapsed", evt.Dur))
			level = zapcore.InfoLevel
		case progress.StageItemDone:
			fields = append(fields,
				zap.String("date", evt.Date),
				zap.String("outcome", string(evt.Outcome)),
				zap.Int("attempts", evt.Attempts),
				zap.Duration("dur", evt.Dur),
			)
			if evt.Outcome == comics.ItemFailed {
				level = zapcore.WarnLevel
			}
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Log(level, "progress event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return s.logger.Sync()
}
