// Copyright 2023 Intel Corporation. All Rights Reserved.
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

package log

import (
	"fmt"
	"os"
)

// Level describes the severity of log messages.
type Level int

const (
	// LevelDebug is the severity for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the severity for informational messages.
	LevelInfo
	// LevelWarn is the severity for warnings.
	LevelWarn
	// LevelError is the severity for errors.
	LevelError
	// LevelPanic is the severity for panic messages.
	LevelPanic
	// LevelFatal is the severity for fatal errors.
	LevelFatal
	// levelHighest is the highest externally visible level
	levelHighest
)

// DefaultLevel is the default lowest emitted severity.
const DefaultLevel = LevelInfo

// Logger is the interface for producing log messages for/from a particular source.
type Logger interface {
	// Debug formats and emits a debug message.
	Debug(format string, args ...interface{})
	// Info formats and emits an informational message.
	Info(format string, args ...interface{})
	// Warn formats and emits a warning message.
	Warn(format string, args ...interface{})
	// Error formats and emits an error message.
	Error(format string, args ...interface{})
	// Panic formats and emits an error message then panics with the same.
	Panic(format string, args ...interface{})
	// Fatal formats and emits an error message and os.Exit()'s with status 1.
	Fatal(format string, args ...interface{})

	// DebugBlock formats and emits a multiline debug message.
	DebugBlock(prefix string, format string, args ...interface{})
	// InfoBlock formats and emits a multiline information message.
	InfoBlock(prefix string, format string, args ...interface{})

	// EnableDebug enables debug messages for this Logger.
	EnableDebug(bool) bool
	// DebugEnabled checks if debug messages are enabled for this Logger.
	DebugEnabled() bool

	// Source returns the source name of this Logger.
	Source() string
}

// logger implements our Logger.
type logger string

// EnableDebug enables/disables debug logging for this logger.
func (l logger) EnableDebug(enable bool) bool {
	log.Lock()
	defer log.Unlock()

	old := log.debugging(string(l))
	log.debug[string(l)] = enable

	return old
}

// DebugEnabled checks debug logging is enabled for this logger.
func (l logger) DebugEnabled() bool {
	log.RLock()
	defer log.RUnlock()
	return log.debugging(string(l))
}

// Source returns the source for the given logger.
func (l logger) Source() string {
	return string(l)
}

func (l logger) Debug(format string, args ...interface{}) {
	if active, emit := l.backend(LevelDebug); emit {
		active.Log(LevelDebug, string(l), format, args...)
	}
}

func (l logger) Info(format string, args ...interface{}) {
	if active, emit := l.backend(LevelInfo); emit {
		active.Log(LevelInfo, string(l), format, args...)
	}
}

func (l logger) Warn(format string, args ...interface{}) {
	if active, emit := l.backend(LevelWarn); emit {
		active.Log(LevelWarn, string(l), format, args...)
	}
}

func (l logger) Error(format string, args ...interface{}) {
	if active, emit := l.backend(LevelError); emit {
		active.Log(LevelError, string(l), format, args...)
	}
}

// Fatal logs a fatal error message and os.Exit(1)'s.
func (l logger) Fatal(format string, args ...interface{}) {
	active, _ := l.backend(LevelFatal)
	active.Log(LevelFatal, string(l), format, args...)
	active.Sync()
	os.Exit(1)
}

// Panic logs a panic message and panic()'s.
func (l logger) Panic(format string, args ...interface{}) {
	active, _ := l.backend(LevelPanic)
	active.Log(LevelPanic, string(l), format, args...)
	panic(fmt.Sprintf(string(l)+": "+format, args...))
}

func (l logger) DebugBlock(prefix string, format string, args ...interface{}) {
	if active, emit := l.backend(LevelDebug); emit {
		active.Block(LevelDebug, string(l), prefix, format, args...)
	}
}

func (l logger) InfoBlock(prefix string, format string, args ...interface{}) {
	if active, emit := l.backend(LevelInfo); emit {
		active.Block(LevelInfo, string(l), prefix, format, args...)
	}
}

// backend returns the active backend and whether a message of level is emitted.
func (l logger) backend(level Level) (Backend, bool) {
	log.RLock()
	defer log.RUnlock()

	if level == LevelDebug {
		return log.active, log.debugging(string(l))
	}
	return log.active, level >= log.level
}
