package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Logger is a small leveled logger with key=value context pairs.
// Output goes to stderr so monitor results on stdout stay machine-readable.
type Logger struct {
	logger *log.Logger
	level  Level
	base   []interface{}
}

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func New(level string) *Logger {
	return NewWithOutput(level, os.Stderr)
}

func NewWithOutput(level string, out io.Writer) *Logger {
	return &Logger{
		logger: log.New(out, "", 0),
		level:  parseLevel(level),
	}
}

func parseLevel(level string) Level {
	switch level {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// With returns a derived logger whose lines always carry the given pairs.
func (l *Logger) With(args ...interface{}) *Logger {
	combined := make([]interface{}, 0, len(l.base)+len(args))
	combined = append(combined, l.base...)
	combined = append(combined, args...)

	return &Logger{
		logger: l.logger,
		level:  l.level,
		base:   combined,
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.level <= DEBUG {
		l.log("DEBUG", msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...interface{}) {
	if l.level <= INFO {
		l.log("INFO", msg, args...)
	}
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.level <= WARN {
		l.log("WARN", msg, args...)
	}
}

func (l *Logger) Error(msg string, err error, args ...interface{}) {
	if l.level <= ERROR {
		if err != nil {
			args = append(args, "error", err.Error())
		}
		l.log("ERROR", msg, args...)
	}
}

func (l *Logger) log(level, msg string, args ...interface{}) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)

	pairs := make([]interface{}, 0, len(l.base)+len(args))
	pairs = append(pairs, l.base...)
	pairs = append(pairs, args...)

	if len(pairs) > 0 {
		message += " |"
		for i := 0; i+1 < len(pairs); i += 2 {
			message += fmt.Sprintf(" %v=%v", pairs[i], pairs[i+1])
		}
	}

	l.logger.Println(message)
}
