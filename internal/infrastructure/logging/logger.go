package logging

import (
	"errors"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is attached to every entry of a logger built by New.
const Service = "bashautom"

// Logger is a zap.Logger whose level can be changed while running.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// Config defines logger configuration.
type Config struct {
	Level       string // debug, info, warn or error
	Development bool   // console output with colours and stack traces
	OutputPaths []string
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", OutputPaths: []string{"stderr"}}
}

// DevelopmentConfig logs coloured console lines at debug level to stderr.
func DevelopmentConfig() Config {
	return Config{Level: "debug", Development: true, OutputPaths: []string{"stderr"}}
}

// New builds a logger. Stdout is left to command output, so an empty
// OutputPaths logs to stderr.
func New(cfg Config) (*Logger, error) {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	atom := zap.NewAtomicLevelAt(lvl)
	logger, err := zap.Config{
		Level:             atom,
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
		InitialFields:     map[string]any{"service": Service},
	}.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger, level: atom}, nil
}

// NewDefault is New(DefaultConfig()), falling back to a no-op logger.
func NewDefault() *Logger {
	return mustOrNop(New(DefaultConfig()))
}

// NewDevelopment is New(DevelopmentConfig()), falling back to a no-op logger.
func NewDevelopment() *Logger {
	return mustOrNop(New(DevelopmentConfig()))
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

func mustOrNop(l *Logger, err error) *Logger {
	if err != nil {
		return NewNop()
	}
	return l
}

// SetLevel changes the minimum enabled level at runtime.
func (l *Logger) SetLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(lvl)
	return nil
}

// LevelName returns the current minimum enabled level.
func (l *Logger) LevelName() string {
	return l.level.Level().String()
}

// Component returns a named child logger for one subsystem.
func (l *Logger) Component(name string) *zap.Logger {
	return l.Logger.Named(name)
}

// Sync flushes buffered entries. Errors from syncing a terminal or pipe are
// ignored.
func (l *Logger) Sync() error {
	err := l.Logger.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EBADF) {
		return nil
	}
	return err
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	var enc zapcore.EncoderConfig
	if development {
		enc = zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		enc = zap.NewProductionEncoderConfig()
		enc.TimeKey = "timestamp"
		enc.MessageKey = "message"
	}
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	return enc
}
