// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

type Logger struct {
	prefix string
}

var (
	baseMu       sync.RWMutex
	baseLogger   = log.New(os.Stdout, "", log.LstdFlags)
	logFile      *os.File
	once         sync.Once
	debugEnabled bool
	debugMu      sync.RWMutex
)

// Init adds a log file next to stdout. Loggers created before Init
// pick up the file as well since they share the base logger.
// Debug is enabled at startup if the DEBUG env var is set.
func Init(logPath string) error {
	var err error
	once.Do(func() {
		if mkErr := os.MkdirAll(filepath.Dir(logPath), 0755); mkErr != nil {
			err = mkErr
			return
		}
		logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		setOutput(io.MultiWriter(os.Stdout, logFile))

		if os.Getenv("DEBUG") != "" {
			EnableDebug(true)
		}
	})
	return err
}

// Close cleans up the log file (call on shutdown)
func Close() {
	baseMu.Lock()
	defer baseMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// SetOutput redirects all loggers, mostly useful for tests.
func SetOutput(w io.Writer) {
	setOutput(w)
}

func setOutput(w io.Writer) {
	baseMu.Lock()
	baseLogger = newBaseLogger(w)
	baseMu.Unlock()
}

func base() *log.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return baseLogger
}

// EnableDebug dynamically turns debug logging on/off
func EnableDebug(on bool) {
	debugMu.Lock()
	debugEnabled = on
	debugMu.Unlock()
}

// IsDebug returns current debug state
func IsDebug() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugEnabled
}

func New(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

func (l *Logger) Info(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	base().Printf("[%s] INFO: %v", l.prefix, formatted)
}

func (l *Logger) Warn(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	base().Printf("[%s] WARN: %v", l.prefix, formatted)
}

func (l *Logger) Error(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	_, file, line, ok := runtime.Caller(1)
	if ok {
		file = filepath.Base(file)
		base().Printf("[%s] ERROR: (%s:%d) %s", l.prefix, file, line, formatted)
	} else {
		base().Printf("[%s] ERROR: %v", l.prefix, formatted)
	}
}

func (l *Logger) Fatal(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	_, file, line, ok := runtime.Caller(1)
	if ok {
		file = filepath.Base(file)
		base().Printf("[%s] FATAL: (%s:%d) %s", l.prefix, file, line, formatted)
	} else {
		base().Printf("[%s] FATAL: %v", l.prefix, formatted)
	}
	panic(formatted)
}

func (l *Logger) Debug(fmtstr string, v ...any) {
	if !IsDebug() {
		return
	}
	formatted := fmt.Sprintf(fmtstr, v...)
	base().Printf("[%s] DEBUG: %v", l.prefix, formatted)
}
