package logger

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	sugar    *zap.SugaredLogger
	level    LogLevel
	prefixes []string
}

var _ Logger = (*zapLogger)(nil)

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

// New returns a Logger writing to stderr at the given level. When stderr is a
// terminal it uses a colorized console encoder, otherwise structured JSON.
func New(level LogLevel) Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zapLevel(level))
	return &zapLogger{sugar: zap.New(core).Sugar(), level: level}
}

func (l *zapLogger) clone() *zapLogger {
	return &zapLogger{
		sugar:    l.sugar,
		level:    l.level,
		prefixes: append([]string(nil), l.prefixes...),
	}
}

func (l *zapLogger) With(metadata map[string]interface{}) Logger {
	kv := make([]interface{}, 0, len(metadata)*2)
	for k, v := range metadata {
		kv = append(kv, k, v)
	}
	c := l.clone()
	c.sugar = l.sugar.With(kv...)
	return c
}

func (l *zapLogger) WithPrefix(prefix string) Logger {
	c := l.clone()
	c.prefixes = append(c.prefixes, prefix)
	return c
}

func (l *zapLogger) format(msg string) string {
	if len(l.prefixes) == 0 {
		return msg
	}
	return "[" + strings.Join(l.prefixes, "] [") + "] " + msg
}

func (l *zapLogger) Debug(msg string, args ...interface{}) {
	l.sugar.Debugf(l.format(msg), args...)
}

func (l *zapLogger) Info(msg string, args ...interface{}) {
	l.sugar.Infof(l.format(msg), args...)
}

func (l *zapLogger) Warn(msg string, args ...interface{}) {
	l.sugar.Warnf(l.format(msg), args...)
}

func (l *zapLogger) Error(msg string, args ...interface{}) {
	l.sugar.Errorf(l.format(msg), args...)
}

func (l *zapLogger) IsDebugEnabled() bool {
	return l.level <= LevelDebug
}
