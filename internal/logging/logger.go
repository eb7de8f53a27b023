package logging

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
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

// ParseLevel разбирает уровень из строки ("debug", "INFO" ...). Неизвестное значение даёт INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case TRACE:
		return logrus.TraceLevel
	case DEBUG:
		return logrus.DebugLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Options настройки корневого логгера
type Options struct {
	Level  string // trace|debug|info|warn|error
	Format string // text|json
	Dir    string // если задан, лог дублируется в файл
}

// Logger компонентный логгер поверх logrus
type Logger struct {
	entry *logrus.Entry
}

var (
	root    = newRoot()
	logFile *os.File
)

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")).logrus())
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	}
	return l
}

// InitLogger настраивает корневой логгер. Повторный вызов закрывает прежний файл.
func InitLogger(opts Options) error {
	if opts.Level != "" {
		root.SetLevel(ParseLevel(opts.Level).logrus())
	}
	switch strings.ToLower(opts.Format) {
	case "json":
		root.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text":
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	}

	if opts.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return fmt.Errorf("ошибка создания директории логов: %w", err)
	}
	filename := filepath.Join(opts.Dir, fmt.Sprintf("server_%s.log", time.Now().Format("2006-01-02_15-04-05")))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("ошибка создания файла логов: %w", err)
	}
	CloseLogger()
	logFile = file
	root.SetOutput(io.MultiWriter(os.Stdout, file))
	return nil
}

// SetOutput перенаправляет вывод корневого логгера (используется в тестах)
func SetOutput(w io.Writer) {
	root.SetOutput(w)
}

// SetLevel меняет уровень корневого логгера
func SetLevel(level LogLevel) {
	root.SetLevel(level.logrus())
}

// IsDebug сообщает, включён ли DEBUG
func IsDebug() bool {
	return root.IsLevelEnabled(logrus.DebugLevel)
}

// CloseLogger закрывает файл логов, если он открыт
func CloseLogger() {
	if logFile != nil {
		root.SetOutput(os.Stdout)
		_ = logFile.Close()
		logFile = nil
	}
}

// newLogger создаёт компонентный логгер
func newLogger(component string) *Logger {
	return &Logger{entry: root.WithField("component", component)}
}

// With возвращает логгер с дополнительным полем
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Trace(format string, args ...interface{}) { l.entry.Tracef(format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

var defaultLogger = &Logger{entry: logrus.NewEntry(root)}

// Trace логирует сообщение уровня TRACE
func Trace(format string, args ...interface{}) { defaultLogger.Trace(format, args...) }

// Debug логирует сообщение уровня DEBUG
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }

// Info логирует сообщение уровня INFO
func Info(format string, args ...interface{}) { defaultLogger.Info(format, args...) }

// Warn логирует сообщение уровня WARN
func Warn(format string, args ...interface{}) { defaultLogger.Warn(format, args...) }

// Error логирует сообщение уровня ERROR
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }

// LogMessage логирует сырой кадр протокола с hex дампом
func LogMessage(connID string, direction string, payload []byte) {
	if !IsDebug() {
		return
	}
	log := GetNetworkLogger().With("conn", connID)
	log.Debug("%s frame, %d bytes", direction, len(payload))
	if len(payload) > 0 {
		log.Debug("%s", HexDump(payload))
	}
}

// HexDump создает hex дамп данных
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "No data"
	}
	// Ограничиваем размер дампа до 256 байт
	size := len(data)
	if size > 256 {
		size = 256
	}
	dump := hex.Dump(data[:size])
	if len(data) > size {
		dump += fmt.Sprintf("... (%d more bytes)", len(data)-size)
	}
	return dump
}
