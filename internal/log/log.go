// Package log is a thin wrapper around zap shared by every neurodrive
// component. Loggers are named per component, "evo" or "training" for
// example, so zapfilter rules can raise or silence single components.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

type (
	Level  = zapcore.Level
	Field  = zap.Field
	Option = zap.Option
)

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

// Output formats accepted by Config.Format.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
	FormatAuto    = "auto"
)

var (
	String     = zap.String
	Strings    = zap.Strings
	Int        = zap.Int
	Int64      = zap.Int64
	Float64    = zap.Float64
	Bool       = zap.Bool
	Duration   = zap.Duration
	Time       = zap.Time
	Any        = zap.Any
	ErrorField = zap.Error

	WithCaller    = zap.WithCaller
	AddCallerSkip = zap.AddCallerSkip
)

type Config struct {
	Level  string
	Format string
	// Filter holds zapfilter rules such as "debug:evo info+:*".
	Filter string
}

type Logger struct {
	l     *zap.Logger
	level zap.AtomicLevel
}

// New builds a logger writing to w. With FormatAuto, console output is used
// when w is a terminal and JSON otherwise.
func New(w io.Writer, cfg Config, opts ...Option) (*Logger, error) {
	levelName := cfg.Level
	if levelName == "" {
		levelName = "info"
		if cfg.Filter != "" {
			levelName = "debug"
		}
	}
	lvl, err := ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	enc, err := encoder(w, cfg.Format)
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(lvl)
	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	if cfg.Filter != "" {
		rules, err := zapfilter.ParseRules(cfg.Filter)
		if err != nil {
			return nil, fmt.Errorf("log filter %q: %w", cfg.Filter, err)
		}
		core = zapfilter.NewFilteringCore(core, rules)
	}
	return &Logger{l: zap.New(core, opts...), level: level}, nil
}

func encoder(w io.Writer, format string) (zapcore.Encoder, error) {
	switch strings.ToLower(format) {
	case "", FormatAuto:
		if isTerminal(w) {
			return consoleEncoder(), nil
		}
		return jsonEncoder(), nil
	case FormatJSON:
		return jsonEncoder(), nil
	case FormatConsole:
		return consoleEncoder(), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zapcore.NewConsoleEncoder(cfg)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func ParseLevel(s string) (Level, error) {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return lvl, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

func (l *Logger) Debug(msg string, fields ...Field) { l.l.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.l.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.l.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.l.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.l.Fatal(msg, fields...) }

func (l *Logger) Named(name string) *Logger {
	return &Logger{l: l.l.Named(name), level: l.level}
}

func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{l: l.l.With(fields...), level: l.level}
}

// SetLevel changes the level of this logger and every logger derived from it.
func (l *Logger) SetLevel(lvl Level) {
	l.level.SetLevel(lvl)
}

func (l *Logger) Enabled(lvl Level) bool {
	return l.l.Core().Enabled(lvl)
}

func (l *Logger) Sync() error {
	return l.l.Sync()
}

var std atomic.Pointer[Logger]

func init() {
	l, _ := New(os.Stderr, Config{Format: FormatAuto})
	std.Store(l)
}

func Default() *Logger {
	return std.Load()
}

// ResetDefault replaces the logger returned by Default.
func ResetDefault(l *Logger) {
	std.Store(l)
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{l: zap.NewNop(), level: zap.NewAtomicLevel()}
}

func Debug(msg string, fields ...Field) { Default().l.Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { Default().l.Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { Default().l.Warn(msg, fields...) }
func Error(msg string, fields ...Field) { Default().l.Error(msg, fields...) }
func Fatal(msg string, fields ...Field) { Default().l.Fatal(msg, fields...) }
