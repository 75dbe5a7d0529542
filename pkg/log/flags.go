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
	"flag"
	"sort"
	"strings"
)

const (
	// command-line argument prefix.
	optPrefix = "logger"
	// Flag for enabling/disabling debug logging for sources.
	optDebug = optPrefix + "-debug"
	// Flag for selecting logging level.
	optLevel = optPrefix + "-level"
	// Flag for selecting logging backend.
	optLogger = optPrefix
)

// srcmap tracks debugging settings for sources.
type srcmap map[string]bool

// levelFlag and friends implement flag.Value on top of the runtime state.
type (
	levelFlag   struct{}
	backendFlag struct{}
	debugFlag   struct{}
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warning": LevelWarn,
	"warn":    LevelWarn,
	"error":   LevelError,
}

// ParseLevel parses the name of a severity level.
func ParseLevel(value string) (Level, error) {
	level, ok := levelNames[strings.ToLower(value)]
	if !ok {
		return LevelInfo, loggerError("invalid logging level %q", value)
	}
	return level, nil
}

// String returns the name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warning"
	case LevelError:
		return "error"
	case LevelPanic:
		return "panic"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}

func (levelFlag) Set(value string) error {
	level, err := ParseLevel(value)
	if err != nil {
		return err
	}
	SetLevel(level)
	return nil
}

func (levelFlag) String() string {
	log.RLock()
	defer log.RUnlock()
	return log.level.String()
}

func (backendFlag) Set(value string) error {
	return SetBackend(value)
}

func (backendFlag) String() string {
	log.RLock()
	defer log.RUnlock()
	if log.active == nil {
		return FmtBackendName
	}
	return log.active.Name()
}

// Set parses a comma-separated list of [on:|off:]source entries. A state
// prefix applies to the entry and all entries following it.
func (debugFlag) Set(value string) error {
	sm, err := parseSrcmap(value)
	if err != nil {
		return err
	}
	log.Lock()
	defer log.Unlock()
	for src, state := range sm {
		log.debug[src] = state
	}
	return nil
}

func (debugFlag) String() string {
	log.RLock()
	defer log.RUnlock()
	return log.debug.String()
}

func parseSrcmap(value string) (srcmap, error) {
	sm := make(srcmap)
	prev := "on"
	for _, entry := range strings.Split(value, ",") {
		if entry == "" {
			continue
		}
		state, src := prev, entry
		if statesrc := strings.SplitN(entry, ":", 2); len(statesrc) == 2 {
			state, src = statesrc[0], statesrc[1]
			prev = state
		}
		if src == "all" {
			src = "*"
		}
		enabled, err := parseEnabled(state)
		if err != nil {
			return nil, loggerError("invalid state %q in source map", state)
		}
		sm[src] = enabled
	}
	return sm, nil
}

// String returns a string representation of the srcmap.
func (m srcmap) String() string {
	var on, off []string
	for src, state := range m {
		if state {
			on = append(on, src)
		} else {
			off = append(off, src)
		}
	}
	sort.Strings(on)
	sort.Strings(off)
	switch {
	case len(off) == 0:
		return "on:" + strings.Join(on, ",")
	case len(on) == 0:
		return "off:" + strings.Join(off, ",")
	}
	return "on:" + strings.Join(on, ",") + ",off:" + strings.Join(off, ",")
}

func parseEnabled(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "enable", "enabled", "true", "1":
		return true, nil
	case "off", "disable", "disabled", "false", "0":
		return false, nil
	}
	return false, loggerError("invalid enabled/disabled value %q", value)
}

// RegisterFlags registers our command line flags in the given FlagSet.
func RegisterFlags(fs *flag.FlagSet) {
	fs.Var(backendFlag{}, optLogger,
		"logger backend to use (fmt, klog, logrus).")
	fs.Var(levelFlag{}, optLevel,
		"lowest severity level to pass through (debug, info, warning, error)")
	fs.Var(debugFlag{}, optDebug,
		"comma-separated list of source names to enable debug messages for.\n"+
			"Specify '*' or 'all' to enable all sources.\n"+
			"Prefix a source or list with 'off:' to disable.")
}

func init() {
	RegisterFlags(flag.CommandLine)
}
