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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tierhints/tierhints/pkg/config"
	"github.com/tierhints/tierhints/pkg/generator"
	"github.com/tierhints/tierhints/pkg/trace"
)

func TestGeneratorConfigDefaults(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, config.Load("", cfg))

	require.Equal(t, 1000, cfg.QueueSize)
	require.Equal(t, "remote", cfg.Client.Type)
	require.Equal(t, 1337, cfg.Client.Port)
	require.Len(t, cfg.Sources, 3)
	for i := range cfg.Sources {
		_, err := trace.NewSource(&cfg.Sources[i])
		require.NoError(t, err)
	}
}

func TestGeneratorConfig(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, config.Parse([]byte(`
queueSize: 10
sources:
  - name: block
    type: pipe
    device: /dev/sdd
    restartDelay: 1s
strategy:
  name: affinity
  config:
    markers:
      - inode: 13
        tier: 0
client:
  type: stdout
`), cfg))

	require.Equal(t, 10, cfg.QueueSize)
	require.Equal(t, []trace.SourceConfig{{
		Name:         "block",
		Type:         "pipe",
		Device:       "/dev/sdd",
		RestartDelay: config.Duration(time.Second),
	}}, cfg.Sources)
	require.Equal(t, "stdout", cfg.Client.Type)
	require.Equal(t, "localhost", cfg.Client.Host)

	_, err := generator.NewStrategy(cfg.Strategy.Name, cfg.Strategy.ConfigJson())
	require.NoError(t, err)
}
