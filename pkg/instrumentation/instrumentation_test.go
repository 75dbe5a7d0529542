// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
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

package instrumentation

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tierhints/tierhints/pkg/metrics"
)

func TestSamplingIdempotency(t *testing.T) {
	tcases := []Sampling{
		Disabled,
		Testing,
		Production,
		0.2, 0.25, 0.5, 0.75, 0.8,
	}
	for _, tc := range tcases {
		var chk Sampling
		require.NoError(t, chk.Parse(tc.String()))
		require.Equal(t, tc, chk)
	}
}

func TestSamplingJSON(t *testing.T) {
	var opts Options
	require.NoError(t, json.Unmarshal([]byte(`{"sampling": "production"}`), &opts))
	require.Equal(t, Production, opts.Sampling)
	require.NoError(t, json.Unmarshal([]byte(`{"sampling": 0.5}`), &opts))
	require.Equal(t, Sampling(0.5), opts.Sampling)
	require.Error(t, json.Unmarshal([]byte(`{"sampling": "often"}`), &opts))
}

func TestPrometheusExport(t *testing.T) {
	metrics.HintsReceived.Inc()

	opts := DefaultOptions()
	opts.HTTPEndpoint = "127.0.0.1:0"
	opts.PrometheusExport = true

	s := NewService("hint-test", opts)
	require.NoError(t, s.Start())
	defer s.Stop()
	require.False(t, s.TracingEnabled())

	body := checkGet(t, "http://"+s.Address()+PrometheusMetricsPath, http.StatusOK)
	require.Contains(t, body, "tierhints_hints_received_total")
}

func TestPrometheusExportDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.HTTPEndpoint = "127.0.0.1:0"

	s := NewService("hint-test", opts)
	require.NoError(t, s.Start())
	defer s.Stop()

	checkGet(t, "http://"+s.Address()+PrometheusMetricsPath, http.StatusNotFound)
}

func TestDumpMetrics(t *testing.T) {
	metrics.Injections.Inc()
	dump, err := DumpMetrics()
	require.NoError(t, err)
	require.Contains(t, dump, "# TYPE tierhints_tier_injections_total counter")
}

func checkGet(t *testing.T, url string, status int) string {
	rpl, err := http.Get(url)
	require.NoError(t, err)
	defer rpl.Body.Close()
	require.Equal(t, status, rpl.StatusCode)
	body, err := io.ReadAll(rpl.Body)
	require.NoError(t, err)
	return string(body)
}
