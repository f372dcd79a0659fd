// Copyright 2021 TiFS Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the process-wide leveled logger. It is a thin
// factory over log/slog with text and json handlers, an optional rotated log
// file, and severity names matching the mount CLI.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity names accepted by --log-severity.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// slog levels of the severities; TRACE and OFF have no slog level of their
// own and use custom values.
const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelOff   slog.Level = 12
)

// RotateConfig bounds the log file.
type RotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

// DefaultRotateConfig returns the rotation bounds used when the config does
// not override them.
func DefaultRotateConfig() RotateConfig {
	return RotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: true}
}

type loggerFactory struct {
	// file is the log file, or nil to write to stderr via sysWriter.
	file      io.WriteCloser
	sysWriter io.Writer
	format    string
	level     string
	rotate    RotateConfig
}

var (
	defaultLoggerFactory = &loggerFactory{
		sysWriter: os.Stderr,
		format:    "text",
		level:     INFO,
		rotate:    DefaultRotateConfig(),
	}
	defaultLogger = defaultLoggerFactory.newLogger(INFO)
)

// InitLogFile redirects all logging into filePath with rotation. Called
// once at startup when --log-file is given; the daemonized child uses it so
// logs survive the detach from the terminal.
func InitLogFile(filePath, format, level string) error {
	if filePath == "" {
		return fmt.Errorf("no log file path given")
	}
	f := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    defaultLoggerFactory.rotate.MaxFileSizeMB,
		MaxBackups: defaultLoggerFactory.rotate.BackupFileCount,
		Compress:   defaultLoggerFactory.rotate.Compress,
	}
	defaultLoggerFactory.file = f
	defaultLoggerFactory.sysWriter = nil
	defaultLoggerFactory.format = format
	defaultLoggerFactory.level = level
	defaultLogger = defaultLoggerFactory.newLogger(level)
	return nil
}

// SetLogFormat switches between the text and json handlers.
func SetLogFormat(format string) {
	if format == defaultLoggerFactory.format {
		return
	}
	defaultLoggerFactory.format = format
	defaultLogger = defaultLoggerFactory.newLogger(defaultLoggerFactory.level)
}

// SetLogSeverity changes the minimum severity.
func SetLogSeverity(level string) {
	defaultLoggerFactory.level = level
	defaultLogger = defaultLoggerFactory.newLogger(level)
}

// NewLegacyLogger returns a *log.Logger writing through the default logger
// at the given level, for libraries that only accept the stdlib shape (the
// fuse bridge's Debug/ErrorLogger).
func NewLegacyLogger(level slog.Level, prefix string) *log.Logger {
	l := slog.NewLogLogger(defaultLogger.Handler(), level)
	l.SetPrefix(prefix)
	return l
}

// Tracef logs at TRACE severity.
func Tracef(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

// Debugf logs at DEBUG severity.
func Debugf(format string, v ...interface{}) {
	defaultLogger.Debug(fmt.Sprintf(format, v...))
}

// Infof logs at INFO severity.
func Infof(format string, v ...interface{}) {
	defaultLogger.Info(fmt.Sprintf(format, v...))
}

// Info logs at INFO severity.
func Info(v ...interface{}) {
	defaultLogger.Info(fmt.Sprint(v...))
}

// Warnf logs at WARNING severity.
func Warnf(format string, v ...interface{}) {
	defaultLogger.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs at ERROR severity.
func Errorf(format string, v ...interface{}) {
	defaultLogger.Error(fmt.Sprintf(format, v...))
}

// Error logs at ERROR severity.
func Error(v ...interface{}) {
	defaultLogger.Error(fmt.Sprint(v...))
}

func (f *loggerFactory) writer() io.Writer {
	if f.file != nil {
		return f.file
	}
	return f.sysWriter
}

func (f *loggerFactory) newLogger(level string) *slog.Logger {
	var programLevel = new(slog.LevelVar)
	handler := f.createJsonOrTextHandler(f.writer(), programLevel)
	setLoggingLevel(level, programLevel)
	return slog.New(handler)
}

func (f *loggerFactory) createJsonOrTextHandler(writer io.Writer, levelVar *slog.LevelVar) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: replaceSeverity,
	}
	if f.format == "json" {
		return slog.NewJSONHandler(writer, opts)
	}
	return slog.NewTextHandler(writer, opts)
}

// replaceSeverity renames slog's level attribute to severity and maps the
// custom trace level to its name.
func replaceSeverity(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		a.Key = "severity"
		level := a.Value.Any().(slog.Level)
		a.Value = slog.StringValue(severityName(level))
	}
	if a.Key == slog.MessageKey {
		a.Key = "message"
	}
	return a
}

func severityName(level slog.Level) string {
	switch {
	case level < LevelDebug:
		return TRACE
	case level < LevelInfo:
		return DEBUG
	case level < LevelWarn:
		return INFO
	case level < LevelError:
		return WARNING
	default:
		return ERROR
	}
}

func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch level {
	case TRACE:
		programLevel.Set(LevelTrace)
	case DEBUG:
		programLevel.Set(LevelDebug)
	case WARNING:
		programLevel.Set(LevelWarn)
	case ERROR:
		programLevel.Set(LevelError)
	case OFF:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}
