package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger интерфейс структурированного логирования, общий для всех сервисов
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Sync() error
}

// Field поле записи лога
type Field struct {
	zap.Field
}

type ctxKey string

// TraceIDKey ключ trace_id в контексте запроса
const TraceIDKey ctxKey = "trace_id"

// redactedValue значение, которым заменяются секреты в логах
const redactedValue = "***"

type zapLogger struct {
	z *zap.Logger
}

// NewLogger создает логгер для сервиса
//
// environment: dev дает консольный вывод, остальные окружения пишут JSON.
// level: debug, info, warn, error. Неизвестное значение дает info.
func NewLogger(environment, level, serviceName string) (Logger, error) {
	var encoder zapcore.Encoder
	if environment == "dev" {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "time"
		cfg.MessageKey = "msg"
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeDuration = zapcore.MillisDurationEncoder
		cfg.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zap.NewAtomicLevelAt(ParseLevel(level)))
	return NewWithCore(core, serviceName, environment), nil
}

// NewWithCore создает логгер поверх произвольного zapcore.Core (используется в тестах с observer)
func NewWithCore(core zapcore.Core, serviceName, environment string) Logger {
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel)).With(
		zap.String("service", serviceName),
		zap.String("environment", environment),
	)
	return &zapLogger{z: z}
}

// NewNop логгер, который ничего не пишет
func NewNop() Logger {
	return &zapLogger{z: zap.NewNop()}
}

// ParseLevel переводит строковый уровень в zapcore.Level
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func unwrap(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = f.Field
	}
	return out
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, unwrap(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, unwrap(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, unwrap(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, unwrap(fields)...) }

// With возвращает дочерний логгер с дополнительными полями
func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(unwrap(fields)...)}
}

// Sync сбрасывает буферы
func (l *zapLogger) Sync() error {
	return l.z.Sync()
}

// WithTraceID кладет trace_id в контекст
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// CtxField возвращает поле trace_id из контекста
func CtxField(ctx context.Context) Field {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		return String("trace_id", traceID)
	}
	return String("trace_id", "unknown")
}

func String(key, val string) Field { return Field{zap.String(key, val)} }

func Int(key string, val int) Field { return Field{zap.Int(key, val)} }

func Int64(key string, val int64) Field { return Field{zap.Int64(key, val)} }

func Bool(key string, val bool) Field { return Field{zap.Bool(key, val)} }

func Duration(key string, val time.Duration) Field { return Field{zap.Duration(key, val)} }

// Error поле с текстом ошибки
func Error(err error) Field {
	if err == nil {
		return Field{zap.String("error", "nil")}
	}
	return Field{zap.String("error", err.Error())}
}

// Redacted поле, значение которого никогда не попадает в лог.
// Фиксируется только факт наличия значения.
func Redacted(key, val string) Field {
	if val == "" {
		return Field{zap.String(key, "")}
	}
	return Field{zap.String(key, redactedValue)}
}

func Any(key string, val interface{}) Field { return Field{zap.Any(key, val)} }
