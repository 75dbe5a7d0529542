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
	"bytes"
	stdlog "log"
)

// stdWriter feeds lines written by the standard log package to a Logger.
type stdWriter struct {
	l Logger
}

// SetStdLogger redirects the standard log package to source, or to the
// default logger if source is empty. Its messages are emitted as debug
// messages, one per line.
func SetStdLogger(source string) {
	l := Default()
	if source != "" {
		l = log.get(source)
	}
	stdlog.SetPrefix("")
	stdlog.SetFlags(0)
	stdlog.SetOutput(&stdWriter{l: l})
}

func (w *stdWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte{'\n'}) {
		w.l.Debug("%s", line)
	}
	return len(p), nil
}
