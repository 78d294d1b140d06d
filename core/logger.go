package core

import (
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProductionLogger is the zap-backed Logger used by services.
// JSON output in production, console output when Logging.Format is "text".
type ProductionLogger struct {
	zl          *zap.Logger
	base        *zap.Logger // zl without the component field
	level       zap.AtomicLevel
	serviceName string
	component   string
}

// NewProductionLogger builds a logger writing to stdout.
func NewProductionLogger(cfg LoggingConfig, serviceName string) (*ProductionLogger, error) {
	return NewProductionLoggerWithWriter(cfg, serviceName, os.Stdout)
}

// NewProductionLoggerWithWriter builds a logger writing to w.
func NewProductionLoggerWithWriter(cfg LoggingConfig, serviceName string, w io.Writer) (*ProductionLogger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, &InstrumentationError{
			Op:      "NewProductionLogger",
			Kind:    "config",
			Message: "unknown log level " + cfg.Level,
			Err:     ErrInvalidConfiguration,
		}
	}

	development := strings.EqualFold(cfg.Format, "text")
	atomic := zap.NewAtomicLevelAt(level)

	var encoder zapcore.Encoder
	if development {
		encoder = zapcore.NewConsoleEncoder(encoderConfig(true))
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig(false))
	}

	zc := zapcore.NewCore(encoder, zapcore.AddSync(w), atomic)
	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(zc, opts...)
	if serviceName != "" {
		zl = zl.With(zap.String("service", serviceName))
	}

	return &ProductionLogger{
		zl:          zl,
		base:        zl,
		level:       atomic,
		serviceName: serviceName,
	}, nil
}

// WithComponent returns a logger that tags entries with component,
// replacing any component of p. The level is shared with the parent.
func (p *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		zl:          p.base.With(zap.String("component", component)),
		base:        p.base,
		level:       p.level,
		serviceName: p.serviceName,
		component:   component,
	}
}

// SetLevel changes the level of this logger and every logger derived from it.
func (p *ProductionLogger) SetLevel(level string) error {
	l, err := parseLevel(level)
	if err != nil {
		return &InstrumentationError{
			Op:      "ProductionLogger.SetLevel",
			Kind:    "config",
			Message: "unknown log level " + level,
			Err:     ErrInvalidConfiguration,
		}
	}
	p.level.SetLevel(l)
	return nil
}

// Zap exposes the underlying zap logger for libraries that want one.
func (p *ProductionLogger) Zap() *zap.Logger {
	return p.zl
}

// Sync flushes buffered entries.
func (p *ProductionLogger) Sync() error {
	return p.zl.Sync()
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.zl.Info(msg, toZapFields(fields)...)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.zl.Error(msg, toZapFields(fields)...)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.zl.Warn(msg, toZapFields(fields)...)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.zl.Debug(msg, toZapFields(fields)...)
}

// toZapFields converts the map form used across the codebase.
// Keys are sorted so output is stable.
func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

// parseLevel converts string level to zapcore.Level.
func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// encoderConfig returns encoder configuration based on environment.
func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		return zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	}

	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
