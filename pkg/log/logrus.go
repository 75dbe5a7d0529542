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
	"strings"

	"github.com/sirupsen/logrus"
)

// LogrusBackendName is the name of the logrus-based backend.
const LogrusBackendName = "logrus"

// logrusBackend emits structured messages with a "source" field.
type logrusBackend struct {
	l *logrus.Logger
}

func createLogrusBackend() Backend {
	l := logrus.New()
	l.SetOutput(fmtOutput)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusBackend{l: l}
}

func (*logrusBackend) Name() string {
	return LogrusBackendName
}

func (b *logrusBackend) Log(level Level, source, format string, args ...interface{}) {
	b.l.WithField("source", source).Log(logrusLevel(level), fmt.Sprintf(format, args...))
}

func (b *logrusBackend) Block(level Level, source, prefix, format string, args ...interface{}) {
	entry := b.l.WithField("source", source)
	for _, line := range strings.Split(fmt.Sprintf(format, args...), "\n") {
		entry.Log(logrusLevel(level), prefix+line)
	}
}

func (*logrusBackend) Sync()                  {}
func (*logrusBackend) Stop()                  {}
func (*logrusBackend) SetSourceAlignment(int) {}

// logrusLevel maps our severity to a logrus level. Fatal and panic are
// emitted as errors, the actual exit or panic is done by our logger.
func logrusLevel(level Level) logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelInfo:
		return logrus.InfoLevel
	case LevelWarn:
		return logrus.WarnLevel
	}
	return logrus.ErrorLevel
}

func init() {
	RegisterBackend(LogrusBackendName, createLogrusBackend)
}
