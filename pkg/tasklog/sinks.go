package tasklog

import (
	"context"
	"log/slog"

	"github.com/sirupsen/logrus"
)

// SlogSink writes to a slog logger with the tag as a "tag" attribute. A nil logger uses slog.Default().
func SlogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(level Level, tag, msg string) {
		l := logger
		if l == nil {
			l = slog.Default()
		}
		l.Log(context.Background(), slogLevel(level), msg, "tag", tag)
	})
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogrusSink writes to a logrus logger with the tag as a "tag" field. A nil logger uses the logrus
// standard logger.
func LogrusSink(logger *logrus.Logger) Sink {
	return SinkFunc(func(level Level, tag, msg string) {
		l := logger
		if l == nil {
			l = logrus.StandardLogger()
		}
		l.WithField("tag", tag).Log(logrusLevel(level), msg)
	})
}

func logrusLevel(level Level) logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
