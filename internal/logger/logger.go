package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type Level = logrus.Level

const (
	LevelDebug = logrus.DebugLevel
	LevelInfo  = logrus.InfoLevel
	LevelWarn  = logrus.WarnLevel
	LevelError = logrus.ErrorLevel
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(LevelInfo)
	l.SetFormatter(jsonFormatter())
	l.AddHook(newRequestIDHook())
	return l
}

func jsonFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

// Init configures the process logger. format is "json" or "text".
func Init(service, level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	std.SetLevel(lvl)

	switch format {
	case "", "json":
		std.SetFormatter(jsonFormatter())
	case "text":
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	std.ReplaceHooks(make(logrus.LevelHooks))
	std.AddHook(newRequestIDHook())
	if service != "" {
		std.AddHook(serviceHook(service))
	}
	return nil
}

func SetLevel(level Level) {
	std.SetLevel(level)
}

func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// Logger exposes the underlying logrus logger for libraries that want one.
func Logger() *logrus.Logger {
	return std
}

func entry(ctx context.Context, kv []any) *logrus.Entry {
	e := std.WithContext(ctx)
	if len(kv) == 0 {
		return e
	}
	fields := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			fields["!BADKEY"] = key
			break
		}
		fields[key] = kv[i+1]
	}
	return e.WithFields(fields)
}

func Debug(ctx context.Context, msg string, kv ...any) {
	entry(ctx, kv).Debug(msg)
}

func Info(ctx context.Context, msg string, kv ...any) {
	entry(ctx, kv).Info(msg)
}

func Warn(ctx context.Context, msg string, kv ...any) {
	entry(ctx, kv).Warn(msg)
}

// Error logs msg with err attached. A nil err logs msg alone.
func Error(ctx context.Context, err error, msg string, kv ...any) {
	e := entry(ctx, kv)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}
