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

// Package instrumentation exports pipeline metrics over HTTP for Prometheus
// and traces for Jaeger.
package instrumentation

import (
	"net/http"
	"sync"

	"github.com/pkg/errors"

	logger "github.com/tierhints/tierhints/pkg/log"
)

// Our logger instance.
var log = logger.NewLogger("instrumentation")

// Service is the state of our instrumentation services: HTTP endpoint,
// trace and metrics exporters.
type Service struct {
	sync.RWMutex
	name     string
	opts     Options
	http     *httpEndpoint
	tracing  *tracing
	exporter *exporter
}

// NewService creates instrumentation services for the named daemon.
func NewService(name string, opts Options) *Service {
	return &Service{
		name:     name,
		opts:     opts,
		http:     &httpEndpoint{mux: http.NewServeMux()},
		tracing:  &tracing{},
		exporter: &exporter{},
	}
}

// Start starts instrumentation services.
func (s *Service) Start() error {
	log.Info("starting instrumentation services...")

	s.Lock()
	defer s.Unlock()

	if err := s.http.start(s.opts.HTTPEndpoint); err != nil {
		return instrumentationError("failed to start HTTP server: %v", err)
	}
	if err := s.tracing.start(s.name, s.opts.JaegerAgent, s.opts.JaegerCollector, s.opts.Sampling); err != nil {
		s.http.stop()
		return instrumentationError("failed to start tracing: %v", err)
	}
	if s.opts.PrometheusExport {
		if err := s.exporter.start(s.name, s.opts.ReportPeriod.OrDefault(defaultReportPeriod)); err != nil {
			s.tracing.stop()
			s.http.stop()
			return err
		}
		s.http.mux.Handle(PrometheusMetricsPath, s.exporter.pexport)
	}

	return nil
}

// Stop stops instrumentation services.
func (s *Service) Stop() {
	s.Lock()
	defer s.Unlock()

	s.exporter.stop()
	s.tracing.stop()
	s.http.stop()
}

// Address returns the address the HTTP endpoint is listening on.
func (s *Service) Address() string {
	s.RLock()
	defer s.RUnlock()
	return s.http.address()
}

// Handle registers an extra HTTP handler on the endpoint.
func (s *Service) Handle(pattern string, handler http.Handler) {
	s.Lock()
	defer s.Unlock()
	s.http.mux.Handle(pattern, handler)
}

// TracingEnabled returns true if the Jaeger tracing sampler is not disabled.
func (s *Service) TracingEnabled() bool {
	s.RLock()
	defer s.RUnlock()
	return s.tracing.enabled()
}

// instrumentationError produces a formatted instrumentation-specific error.
func instrumentationError(format string, args ...interface{}) error {
	return errors.Errorf("instrumentation: "+format, args...)
}
