// Package logging 基于 zap 的结构化日志
package logging

import (
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger zap.Logger 包装
type Logger struct {
	*zap.Logger
}

// Config 日志配置
type Config struct {
	// Level 日志级别（debug, info, warn, error, dpanic, panic, fatal）
	Level string `toml:"level"`
	// Format 输出格式（json 或 console）
	Format string `toml:"format"`
	// OutputPaths 输出路径
	OutputPaths []string `toml:"output_paths"`
	// ErrorOutputPaths 日志器内部错误输出路径
	ErrorOutputPaths []string `toml:"error_output_paths"`
	// Development 开发模式（DPanic 会 panic）
	Development bool `toml:"development"`
	// EnableCaller 记录调用位置
	EnableCaller bool `toml:"enable_caller"`
	// EnableStacktrace error 级别附带堆栈
	EnableStacktrace bool `toml:"enable_stacktrace"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// DevelopmentConfig 开发环境配置
func DevelopmentConfig() Config {
	return Config{
		Level:            "debug",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		Development:      true,
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// NewLogger 按配置创建日志器
func NewLogger(config Config) (*Logger, error) {
	level, err := parseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	var encoderConfig zapcore.EncoderConfig
	if config.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	format := config.Format
	if format == "" {
		format = "json"
	}
	outputs := config.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	errOutputs := config.ErrorOutputPaths
	if len(errOutputs) == 0 {
		errOutputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       config.Development,
		DisableCaller:     !config.EnableCaller,
		DisableStacktrace: !config.EnableStacktrace,
		Encoding:          format,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  errOutputs,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// NewLoggerFromEnv 根据环境变量创建日志器
// LOG_LEVEL: 日志级别（默认 info）
// LOG_FORMAT: 输出格式（默认 json）
// LOG_DEV: 开发模式（默认 false）
func NewLoggerFromEnv() (*Logger, error) {
	config := ConfigFromEnv(DefaultConfig())
	return NewLogger(config)
}

// ConfigFromEnv 用环境变量覆盖给定配置
func ConfigFromEnv(config Config) Config {
	if os.Getenv("LOG_DEV") == "true" {
		config = DevelopmentConfig()
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Format = format
	}
	return config
}

// NewNoOpLogger 丢弃所有日志
func NewNoOpLogger() *Logger {
	return &Logger{zap.NewNop()}
}

// parseLevel 解析日志级别，未知级别按 info 处理
func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "dpanic":
		return zapcore.DPanicLevel, nil
	case "panic":
		return zapcore.PanicLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, nil
	}
}

// With 附加字段
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{l.Logger.With(fields...)}
}

// Named 子日志器
func (l *Logger) Named(name string) *Logger {
	return &Logger{l.Logger.Named(name)}
}

// Sync 刷新缓冲
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

var global atomic.Pointer[Logger]

func init() {
	global.Store(NewNoOpLogger())
}

// SetGlobal 设置全局日志器
func SetGlobal(logger *Logger) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	global.Store(logger)
}

// Global 全局日志器
func Global() *Logger {
	return global.Load()
}

// L Global 的简写
func L() *Logger {
	return global.Load()
}

// OrGlobal 非空时返回 l，否则返回全局日志器
func OrGlobal(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return Global()
}
