// Package logger 提供全局日志工具，底层基于 zap。
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level 日志级别
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds the logger output settings.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stderr, stdout, file, both
	FilePath   string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
}

var (
	mu           sync.RWMutex
	currentLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar        = newSugar(&Config{Format: "console", Output: "stderr"}, nil)
)

// Init 根据配置重建全局日志实例
func Init(cfg *Config) {
	if cfg == nil {
		cfg = &Config{}
	}
	SetLevelFromString(cfg.Level)

	mu.Lock()
	defer mu.Unlock()
	old := sugar
	sugar = newSugar(cfg, nil)
	_ = old.Sync()
}

// SetOutput redirects all log output to w. Used by tests and the CLI quiet mode.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sugar = newSugar(&Config{Format: "console"}, zapcore.AddSync(w))
}

func newSugar(cfg *Config, sink zapcore.WriteSyncer) *zap.SugaredLogger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var cores []zapcore.Core
	if sink != nil {
		cores = append(cores, zapcore.NewCore(encoder, sink, currentLevel))
	} else {
		switch cfg.Output {
		case "stdout":
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), currentLevel))
		case "file":
		default:
			// stderr 保持 stdout 干净，便于输出 JSON 结果
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), currentLevel))
		}
		if (cfg.Output == "file" || cfg.Output == "both") && cfg.FilePath != "" {
			writer := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
			}
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), currentLevel))
		}
	}

	return zap.New(zapcore.NewTee(cores...)).Sugar()
}

func l() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// SetLevel 设置日志级别
func SetLevel(level Level) {
	switch level {
	case LevelDebug:
		currentLevel.SetLevel(zapcore.DebugLevel)
	case LevelWarn:
		currentLevel.SetLevel(zapcore.WarnLevel)
	case LevelError:
		currentLevel.SetLevel(zapcore.ErrorLevel)
	default:
		currentLevel.SetLevel(zapcore.InfoLevel)
	}
}

// SetLevelFromString 从字符串设置日志级别
func SetLevelFromString(level string) {
	switch strings.ToLower(level) {
	case "debug":
		SetLevel(LevelDebug)
	case "warn", "warning":
		SetLevel(LevelWarn)
	case "error":
		SetLevel(LevelError)
	default:
		SetLevel(LevelInfo)
	}
}

// EnableDebug 启用调试日志
func EnableDebug() {
	SetLevel(LevelDebug)
}

// DisableDebug 禁用调试日志
func DisableDebug() {
	SetLevel(LevelInfo)
}

// IsDebugEnabled 检查是否启用调试日志
func IsDebugEnabled() bool {
	return currentLevel.Enabled(zapcore.DebugLevel)
}

// Debug 输出调试日志
func Debug(format string, args ...interface{}) {
	l().Debugf(format, args...)
}

// Info 输出信息日志
func Info(format string, args ...interface{}) {
	l().Infof(format, args...)
}

// Warn 输出警告日志
func Warn(format string, args ...interface{}) {
	l().Warnf(format, args...)
}

// Error 输出错误日志
func Error(format string, args ...interface{}) {
	l().Errorf(format, args...)
}

// Sync 刷新缓冲区
func Sync() {
	_ = l().Sync()
}
