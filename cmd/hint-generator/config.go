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

package main

import (
	"github.com/tierhints/tierhints/pkg/config"
	"github.com/tierhints/tierhints/pkg/instrumentation"
	"github.com/tierhints/tierhints/pkg/trace"
	"github.com/tierhints/tierhints/pkg/transport"
)

// generatorConfig is the configuration of the hint generator daemon.
type generatorConfig struct {
	// QueueSize is the capacity of the trace queue.
	QueueSize int `json:"queueSize,omitempty"`
	// NoDataInterval is the default poll interval of frame sources.
	NoDataInterval config.Duration `json:"noDataInterval,omitempty"`
	// Sources are the trace sources to read.
	Sources []trace.SourceConfig `json:"sources,omitempty"`
	// Strategy selects the hint strategy.
	Strategy config.Component `json:"strategy"`
	// Client selects where hints are sent.
	Client transport.ClientConfig `json:"client"`
	// Instrumentation configures metrics and tracing.
	Instrumentation instrumentation.Options `json:"instrumentation"`
	// PidFile is the PID file of the daemon.
	PidFile string `json:"pidFile,omitempty"`
}

func defaultConfig() *generatorConfig {
	return &generatorConfig{
		QueueSize:      trace.DefaultQueueSize,
		NoDataInterval: config.Duration(trace.DefaultNoDataInterval),
		Sources: []trace.SourceConfig{
			{Name: "file", Type: "frame", Format: string(trace.KindFile), Path: "/dev/file_trace"},
			{Name: "post_cache", Type: "frame", Format: string(trace.KindPostCache), Path: "/dev/post_cache_trace"},
			{Name: "block", Type: "pipe", Device: "/dev/sdc"},
		},
		Strategy: config.Component{Name: "null"},
		Client: transport.ClientConfig{
			Type: transport.SinkRemote,
			Host: "localhost",
			Port: transport.DefaultPort,
		},
		Instrumentation: instrumentation.DefaultOptions(),
	}
}
