package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger with the service's default fields
type Logger struct {
	*zap.Logger
}

type LogConfig struct {
	Level       string // debug, info, warn, error
	Format      string // json, console
	OutputPath  string // stdout, stderr, or file path
	ServiceName string
	Version     string
}

// NewLogger creates a new logger instance
func NewLogger(config LogConfig) *Logger {
	core := zapcore.NewCore(newEncoder(config.Format), openOutput(config.OutputPath), parseLevel(config.Level))
	return newLogger(core, config)
}

// NewLoggerWithCore builds a Logger on an existing core, mainly for tests
func NewLoggerWithCore(core zapcore.Core, config LogConfig) *Logger {
	return newLogger(core, config)
}

func newLogger(core zapcore.Core, config LogConfig) *Logger {
	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	if config.ServiceName == "" {
		config.ServiceName = "benchd"
	}

	return &Logger{
		Logger: logger.With(
			zap.String("service", config.ServiceName),
			zap.String("version", config.Version),
			zap.String("host", getHostname()),
			zap.Int("pid", os.Getpid()),
		),
	}
}

// NewSlogLogger builds the slog logger used by leaf packages, with the same
// level, format and destination as the zap logger.
func NewSlogLogger(config LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(parseLevel(config.Level))}

	var w io.Writer = os.Stdout
	if ws, ok := openOutput(config.OutputPath).(io.Writer); ok {
		w = ws
	}

	var handler slog.Handler
	if config.Format == "console" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// With creates a child logger with additional fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// WithRequestID tags the logger with a request ID, if any
func (l *Logger) WithRequestID(requestID string) *Logger {
	if requestID == "" {
		return l
	}
	return l.With(zap.String("request_id", requestID))
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	return l.With(zap.Error(err))
}

// WithHTTPRequest adds HTTP request fields
func (l *Logger) WithHTTPRequest(method, path string, statusCode int, duration time.Duration) *Logger {
	return l.With(
		zap.String("http_method", method),
		zap.String("http_path", path),
		zap.Int("http_status", statusCode),
		zap.Duration("http_duration", duration),
	)
}

// WithStream adds stream connection fields
func (l *Logger) WithStream(connID, remoteAddr string) *Logger {
	return l.With(
		zap.String("stream_id", connID),
		zap.String("remote_addr", remoteAddr),
	)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func slogLevel(level zapcore.Level) slog.Level {
	switch level {
	case zapcore.DebugLevel:
		return slog.LevelDebug
	case zapcore.WarnLevel:
		return slog.LevelWarn
	case zapcore.ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    "function",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func openOutput(path string) zapcore.WriteSyncer {
	switch path {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout)
	case "stderr":
		return zapcore.AddSync(os.Stderr)
	default:
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zapcore.AddSync(os.Stderr)
		}
		return zapcore.AddSync(file)
	}
}

// getHostname returns the hostname
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
