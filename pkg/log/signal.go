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
	"os"
	"os/signal"
)

// debugToggle is the active toggle signal handler, if any.
var debugToggle struct {
	ch   chan os.Signal
	done chan struct{}
}

// SetupDebugToggleSignal makes sig toggle forced debugging for all sources.
// It replaces any earlier toggle signal.
func SetupDebugToggleSignal(sig os.Signal) {
	log.Lock()
	defer log.Unlock()
	stopDebugToggle()

	ch, done := make(chan os.Signal, 1), make(chan struct{})
	signal.Notify(ch, sig)
	debugToggle.ch, debugToggle.done = ch, done

	go func() {
		for {
			select {
			case <-ch:
				state := "off"
				if ToggleForcedDebug() {
					state = "on"
				}
				deflog.Warn("%v: forced debugging turned %s", sig, state)
			case <-done:
				return
			}
		}
	}()
}

// ClearDebugToggleSignal removes the toggle signal handler.
func ClearDebugToggleSignal() {
	log.Lock()
	defer log.Unlock()
	stopDebugToggle()
}

// ToggleForcedDebug flips forced debugging and returns the new state.
func ToggleForcedDebug() bool {
	log.Lock()
	defer log.Unlock()
	log.forced = !log.forced
	return log.forced
}

func stopDebugToggle() {
	if debugToggle.ch == nil {
		return
	}
	signal.Stop(debugToggle.ch)
	close(debugToggle.done)
	debugToggle.ch, debugToggle.done = nil, nil
}
