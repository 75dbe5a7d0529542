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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "tierhints"
)

// Collectors for the hint pipeline stages.
var (
	TraceRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trace",
		Name:      "records_total",
		Help:      "Trace records read, by source.",
	}, []string{"source"})
	TraceDecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trace",
		Name:      "decode_errors_total",
		Help:      "Trace frames or lines that failed to decode, by source.",
	}, []string{"source"})
	TraceSourceRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trace",
		Name:      "source_restarts_total",
		Help:      "Trace source restarts after failure, by source.",
	}, []string{"source"})
	TraceQueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "trace",
		Name:      "queue_length",
		Help:      "Trace records waiting for the hint generator.",
	})

	HintsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hints",
		Name:      "generated_total",
		Help:      "Hints produced by the generator, by whether they are matched.",
	}, []string{"match"})
	HintsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hints",
		Name:      "sent_total",
		Help:      "Hints delivered, by sink.",
	}, []string{"sink"})
	HintsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hints",
		Name:      "dropped_total",
		Help:      "Advisory hints dropped, by sink.",
	}, []string{"sink"})
	HintsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hints",
		Name:      "received_total",
		Help:      "Hints received over the network.",
	})
	HintParseErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hints",
		Name:      "parse_errors_total",
		Help:      "Received lines that failed to parse.",
	})
	HintQueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hints",
		Name:      "queue_length",
		Help:      "Received hints waiting for the handler.",
	})

	Injections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tier",
		Name:      "injections_total",
		Help:      "Hint injections issued to the tiering driver.",
	})
	InjectionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tier",
		Name:      "injection_errors_total",
		Help:      "Hint injections that failed.",
	})
	Migrations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tier",
		Name:      "migrations_total",
		Help:      "Block migrations requested from the tiering driver.",
	})
	MigrationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tier",
		Name:      "migration_errors_total",
		Help:      "Block migration requests that failed.",
	})

	StageFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_failures_total",
		Help:      "Records or hints whose processing failed or panicked, by pipeline stage.",
	}, []string{"stage"})
)

// pipelineCollector bundles all pipeline collectors into one.
type pipelineCollector []prometheus.Collector

func (c pipelineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range c {
		collector.Describe(ch)
	}
}

func (c pipelineCollector) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range c {
		collector.Collect(ch)
	}
}

func init() {
	RegisterCollector("pipeline", func() (prometheus.Collector, error) {
		return pipelineCollector{
			TraceRecords, TraceDecodeErrors, TraceSourceRestarts, TraceQueueLength,
			HintsGenerated, HintsSent, HintsDropped, HintsReceived, HintParseErrors,
			HintQueueLength, Injections, InjectionErrors, Migrations, MigrationErrors,
			StageFailures,
		}, nil
	})
}
