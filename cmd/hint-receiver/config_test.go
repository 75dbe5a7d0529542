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
)

func TestReceiverConfig(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, config.Parse([]byte(`
port: 4242
maxConnections: 2
dataDevice: /dev/sdtierb
placement:
  name: affinity
migration:
  name: affinity
mover:
  interval: 10ms
  batch: 4
instrumentation:
  prometheusExport: true
`), cfg))

	require.Equal(t, "0.0.0.0", cfg.Listen)
	require.Equal(t, 4242, cfg.Port)
	require.Equal(t, 2, cfg.MaxConnections)
	require.Equal(t, "/dev/tiercontrol", cfg.ControlDevice)
	require.Equal(t, "/dev/sdtierb", cfg.DataDevice)
	require.Equal(t, "affinity", cfg.Placement.Name)
	require.Equal(t, "{}", cfg.Migration.ConfigJson())
	require.Equal(t, 10*time.Millisecond, cfg.Mover.Interval.Std())
	require.Equal(t, 4, cfg.Mover.Batch)
	require.True(t, cfg.Instrumentation.PrometheusExport)

	require.Error(t, config.Parse([]byte("controlDev: /dev/null\n"), defaultConfig()))
}
