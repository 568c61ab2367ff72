package utils

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger is a simple logger for the application
type Logger struct {
	infoLog  *log.Logger
	errorLog *log.Logger
}

// NewLogger creates a new logger
func NewLogger() *Logger {
	return NewLoggerWithOutput(os.Stdout, os.Stderr)
}

// NewLoggerWithOutput creates a logger writing info and error lines to the given writers
func NewLoggerWithOutput(info, errs io.Writer) *Logger {
	return &Logger{
		infoLog:  log.New(info, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile),
		errorLog: log.New(errs, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// NewDiscardLogger creates a logger that drops everything, for tests
func NewDiscardLogger() *Logger {
	return NewLoggerWithOutput(io.Discard, io.Discard)
}

// Info logs an informational message
func (l *Logger) Info(format string, v ...interface{}) {
	l.infoLog.Output(2, fmt.Sprintf(format, v...))
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.errorLog.Output(2, fmt.Sprintf(format, v...))
}
