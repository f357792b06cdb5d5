// Package logger 提供统一的日志工具
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Level 日志级别
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel 解析日志级别字符串，无法识别时返回 INFO
func ParseLevel(s string) Level {
	switch s {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	default:
		return INFO
	}
}

// sink 多个 Logger 共享的输出端
type sink struct {
	mu       sync.Mutex
	level    Level
	enabled  bool
	console  io.Writer
	fileOut  *os.File
	filePath string
	logger   *log.Logger
}

func (s *sink) updateOutput() {
	var writers []io.Writer
	if s.console != nil {
		writers = append(writers, s.console)
	}
	if s.fileOut != nil {
		writers = append(writers, s.fileOut)
	}

	switch len(writers) {
	case 0:
		s.logger.SetOutput(io.Discard)
	case 1:
		s.logger.SetOutput(writers[0])
	default:
		s.logger.SetOutput(io.MultiWriter(writers...))
	}
}

// Logger 日志记录器
//
// 通过 With 派生的子 Logger 与父 Logger 共享级别和输出，只是带上不同的组件名。
type Logger struct {
	component string
	out       *sink
}

var defaultLogger = New()

// New 创建新的 Logger 实例，默认输出到标准输出
func New() *Logger {
	s := &sink{
		level:   INFO,
		enabled: true,
		console: os.Stdout,
		logger:  log.New(os.Stdout, "", 0),
	}
	return &Logger{out: s}
}

// Default 获取默认 logger
func Default() *Logger {
	return defaultLogger
}

// With 派生带组件名的子 logger
func (l *Logger) With(component string) *Logger {
	return &Logger{component: component, out: l.out}
}

// Component 返回组件名
func (l *Logger) Component() string {
	return l.component
}

// SetLevel 设置日志级别
func (l *Logger) SetLevel(level Level) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.level = level
}

// GetLevel 获取日志级别
func (l *Logger) GetLevel() Level {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.level
}

// SetEnabled 设置是否启用日志
func (l *Logger) SetEnabled(enabled bool) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.enabled = enabled
}

// SetOutput 设置控制台输出目标，nil 表示关闭控制台输出
func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.console = w
	l.out.updateOutput()
}

// SetConsole 设置是否输出到标准输出
func (l *Logger) SetConsole(enabled bool) {
	if enabled {
		l.SetOutput(os.Stdout)
	} else {
		l.SetOutput(nil)
	}
}

// SetFile 设置是否同时输出到文件
func (l *Logger) SetFile(enabled bool, path string) error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.fileOut != nil {
		l.out.fileOut.Close()
		l.out.fileOut = nil
	}
	l.out.filePath = path

	if enabled && path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("无法打开日志文件: %w", err)
		}
		l.out.fileOut = f
	}

	l.out.updateOutput()
	return nil
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if !l.out.enabled || level < l.out.level {
		return
	}

	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		l.out.logger.Printf("%s | %-5s | %s | %s", timestamp, level.String(), l.component, msg)
		return
	}
	l.out.logger.Printf("%s | %-5s | %s", timestamp, level.String(), msg)
}

// Debug 输出 DEBUG 级别日志
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info 输出 INFO 级别日志
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn 输出 WARN 级别日志
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error 输出 ERROR 级别日志
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// LogEvent 记录一次查找/截图事件
// 未命中属于正常结果，记为 WARN 而不是 ERROR
func (l *Logger) LogEvent(category string, ok bool, elapsed time.Duration, detail string) {
	ms := float64(elapsed.Microseconds()) / 1000
	if ok {
		l.Info("%-4s | OK | %7.1fms | %s", category, ms, detail)
	} else {
		l.Warn("%-4s | NG | %7.1fms | %s", category, ms, detail)
	}
}

// Close 关闭日志文件
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.fileOut != nil {
		err := l.out.fileOut.Close()
		l.out.fileOut = nil
		l.out.updateOutput()
		return err
	}
	return nil
}

// 包级别便捷函数
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }
