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
	"bytes"
	"strings"
	"sync"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	pclient "github.com/prometheus/client_golang/prometheus"
	model "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.opencensus.io/stats/view"

	"github.com/tierhints/tierhints/pkg/metrics"
)

const (
	// PrometheusMetricsPath is the URL path for exposing metrics to Prometheus.
	PrometheusMetricsPath = "/metrics"
)

// dynamically registered prometheus gatherers
var dynamicGatherers = &gatherers{gatherers: pclient.Gatherers{}}

// exporter is our Prometheus metrics exporter.
type exporter struct {
	pexport *prometheus.Exporter
}

// start creates the Prometheus exporter and registers it for OpenCensus views.
func (e *exporter) start(service string, period time.Duration) error {
	log.Debug("creating Prometheus exporter...")

	pipeline, err := metrics.NewMetricGatherer()
	if err != nil {
		return instrumentationError("failed to create metrics gatherer: %v", err)
	}

	reg := pclient.NewRegistry()
	cfg := prometheus.Options{
		Namespace: prometheusNamespace(service),
		Registry:  reg,
		Gatherer:  pclient.Gatherers{reg, pipeline, dynamicGatherers},
		OnError:   func(err error) { log.Error("%v", err) },
	}

	if e.pexport, err = prometheus.NewExporter(cfg); err != nil {
		return instrumentationError("failed to create Prometheus exporter: %v", err)
	}

	view.RegisterExporter(e.pexport)
	view.SetReportingPeriod(period)

	return nil
}

// stop unregisters the Prometheus exporter.
func (e *exporter) stop() {
	if e.pexport != nil {
		view.UnregisterExporter(e.pexport)
		e.pexport = nil
	}
}

// mutate service name into a valid Prometheus namespace name.
func prometheusNamespace(service string) string {
	return strings.ReplaceAll(strings.ToLower(service), "-", "_")
}

// gatherers is a trivial wrapper around prometheus Gatherers.
type gatherers struct {
	sync.RWMutex
	gatherers pclient.Gatherers
}

// Register registers a new gatherer.
func (g *gatherers) Register(gatherer pclient.Gatherer) {
	g.Lock()
	defer g.Unlock()
	g.gatherers = append(g.gatherers, gatherer)
}

// Gather implements the pclient.Gatherer interface.
func (g *gatherers) Gather() ([]*model.MetricFamily, error) {
	g.RLock()
	defer g.RUnlock()
	return g.gatherers.Gather()
}

// RegisterGatherer registers a new prometheus Gatherer.
func RegisterGatherer(g pclient.Gatherer) {
	dynamicGatherers.Register(g)
}

// DumpMetrics returns all pipeline metrics in Prometheus text format.
func DumpMetrics() (string, error) {
	g, err := metrics.NewMetricGatherer()
	if err != nil {
		return "", err
	}
	families, err := pclient.Gatherers{g, dynamicGatherers}.Gather()
	if err != nil {
		return "", instrumentationError("failed to gather metrics: %v", err)
	}

	buf := &bytes.Buffer{}
	enc := expfmt.NewEncoder(buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", instrumentationError("failed to encode metrics: %v", err)
		}
	}
	return buf.String(), nil
}
