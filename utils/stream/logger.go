package stream

import "go.uber.org/zap"

// Log logs values as they pass through. describe turns a
// value into log fields. A nil describe logs the value as is.
func Log(logger *zap.Logger, msg string, describe func(value interface{}) []zap.Field) Processor {
	if describe == nil {
		describe = func(value interface{}) []zap.Field {
			return []zap.Field{zap.Any("value", value)}
		}
	}

	return func(stream Stream) Stream {
		return &loggedStream{stream, logger, msg, describe}
	}
}

type loggedStream struct {
	Stream
	logger   *zap.Logger
	msg      string
	describe func(value interface{}) []zap.Field
}

func (stream *loggedStream) Next() bool {
	if !stream.Stream.Next() {
		return false
	}

	if ce := stream.logger.Check(zap.DebugLevel, stream.msg); ce != nil {
		ce.Write(stream.describe(stream.Value())...)
	}

	return true
}
