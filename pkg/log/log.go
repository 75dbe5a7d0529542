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
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// state is the runtime state of logging: backends, sources and their settings.
type state struct {
	sync.RWMutex
	level    Level                // lowest unsuppressed severity
	active   Backend              // active backend
	backends map[string]BackendFn // registered backends
	loggers  map[string]logger    // loggers by source
	debug    srcmap               // debug state by source, "*" for all
	forced   bool                 // forced full debugging (toggled by signal)
	align    int                  // longest source name seen
}

var log = &state{
	level:    DefaultLevel,
	backends: make(map[string]BackendFn),
	loggers:  make(map[string]logger),
	debug:    make(srcmap),
}

// NewLogger returns the logger for the given source, creating it if necessary.
func NewLogger(source string) Logger {
	return log.get(source)
}

// Get is an alias for NewLogger.
func Get(source string) Logger {
	return log.get(source)
}

// SetBackend activates the named backend.
func SetBackend(name string) error {
	log.Lock()
	defer log.Unlock()
	return log.setBackend(name)
}

// SetLevel sets the lowest severity level that is emitted.
func SetLevel(level Level) {
	log.Lock()
	defer log.Unlock()
	log.level = level
}

// EnableDebug turns debugging on or off for the given sources ("*" for all).
func EnableDebug(enable bool, sources ...string) {
	log.Lock()
	defer log.Unlock()
	for _, src := range sources {
		log.debug[src] = enable
	}
}

// Backends returns the names of the registered backends.
func Backends() []string {
	log.RLock()
	defer log.RUnlock()
	names := make([]string, 0, len(log.backends))
	for name := range log.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Flush waits until all pending messages of the active backend are emitted.
func Flush() {
	log.RLock()
	active := log.active
	log.RUnlock()
	if active != nil {
		active.Sync()
	}
}

func (s *state) get(source string) logger {
	source = strings.Trim(source, "[] ")

	s.Lock()
	defer s.Unlock()

	if l, ok := s.loggers[source]; ok {
		return l
	}
	l := logger(source)
	s.loggers[source] = l
	if len(source) > s.align {
		s.align = len(source)
		if s.active != nil {
			s.active.SetSourceAlignment(s.align)
		}
	}
	return l
}

func (s *state) setBackend(name string) error {
	fn, ok := s.backends[name]
	if !ok {
		return loggerError("unknown backend %q", name)
	}
	if s.active != nil {
		if s.active.Name() == name {
			return nil
		}
		s.active.Stop()
	}
	s.active = fn()
	s.active.SetSourceAlignment(s.align)
	return nil
}

func (s *state) debugging(source string) bool {
	if s.forced {
		return true
	}
	if enabled, ok := s.debug[source]; ok {
		return enabled
	}
	return s.debug["*"]
}

// loggerError produces a formatted logger-specific error.
func loggerError(format string, args ...interface{}) error {
	return fmt.Errorf("logger: "+format, args...)
}

// our default logger
var deflog Logger

// Default returns the logger named after the running binary.
func Default() Logger {
	return deflog
}

func init() {
	RegisterBackend(FmtBackendName, createFmtBackend)
	if err := SetBackend(FmtBackendName); err != nil {
		panic(err)
	}
	deflog = log.get(filepath.Base(filepath.Clean(os.Args[0])))
}
