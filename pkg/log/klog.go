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

	"k8s.io/klog/v2"
)

const (
	// KlogBackendName is the name of the klog-based backend.
	KlogBackendName = "klog"
	// klogDepth skips our own frames so klog reports the caller's file:line.
	klogDepth = 3
)

// klogBackend emits messages using k8s.io/klog/v2.
type klogBackend struct{}

func createKlogBackend() Backend {
	return &klogBackend{}
}

func (*klogBackend) Name() string {
	return KlogBackendName
}

func (k *klogBackend) Log(level Level, source, format string, args ...interface{}) {
	k.emit(level, "["+source+"] "+fmt.Sprintf(format, args...))
}

func (k *klogBackend) Block(level Level, source, prefix, format string, args ...interface{}) {
	for _, line := range strings.Split(fmt.Sprintf(format, args...), "\n") {
		k.emit(level, "["+source+"] "+prefix+line)
	}
}

func (k *klogBackend) emit(level Level, msg string) {
	switch level {
	case LevelDebug:
		klog.V(2).InfoDepth(klogDepth, msg)
	case LevelInfo:
		klog.InfoDepth(klogDepth, msg)
	case LevelWarn:
		klog.WarningDepth(klogDepth, msg)
	default:
		klog.ErrorDepth(klogDepth, msg)
	}
}

func (*klogBackend) Sync()                  { klog.Flush() }
func (*klogBackend) Stop()                  { klog.Flush() }
func (*klogBackend) SetSourceAlignment(int) {}

func init() {
	RegisterBackend(KlogBackendName, createKlogBackend)
}
