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
	"github.com/tierhints/tierhints/pkg/handler"
	"github.com/tierhints/tierhints/pkg/instrumentation"
	"github.com/tierhints/tierhints/pkg/tier"
	"github.com/tierhints/tierhints/pkg/transport"
)

// receiverConfig is the configuration of the hint receiver daemon.
type receiverConfig struct {
	transport.ServerConfig
	handler.Config

	// ControlDevice is the control device of the tiering driver.
	ControlDevice string `json:"controlDevice,omitempty"`
	// DataDevice is the tiered block device.
	DataDevice string `json:"dataDevice,omitempty"`
	// SysfsRoot is where the tier directory of DataDevice is found.
	SysfsRoot string `json:"sysfsRoot,omitempty"`
	// Instrumentation configures metrics and tracing.
	Instrumentation instrumentation.Options `json:"instrumentation"`
	// PidFile is the PID file of the daemon.
	PidFile string `json:"pidFile,omitempty"`
}

func defaultConfig() *receiverConfig {
	return &receiverConfig{
		ServerConfig: transport.ServerConfig{
			Listen:         "0.0.0.0",
			Port:           transport.DefaultPort,
			MaxConnections: transport.DefaultMaxConnections,
		},
		ControlDevice:   tier.DefaultControlDevice,
		DataDevice:      "/dev/sdtiera",
		SysfsRoot:       tier.DefaultSysfsRoot,
		Instrumentation: instrumentation.DefaultOptions(),
	}
}
