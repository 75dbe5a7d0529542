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

package generator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/tierhints/tierhints/pkg/hints"
	logger "github.com/tierhints/tierhints/pkg/log"
	"github.com/tierhints/tierhints/pkg/metrics"
	"github.com/tierhints/tierhints/pkg/trace"
)

// Sink delivers hints, one at a time and in order.
type Sink interface {
	Send(ctx context.Context, h *hints.Hint) error
}

// Pipeline runs trace sources into a trace queue, and generates and sends
// hints for the queued records.
type Pipeline struct {
	sources   []trace.Source
	queue     *trace.Queue
	generator *Generator
	sink      Sink
	rlog      logger.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(sources []trace.Source, queue *trace.Queue, g *Generator, sink Sink) *Pipeline {
	return &Pipeline{
		sources:   sources,
		queue:     queue,
		generator: g,
		sink:      sink,
		rlog:      logger.RateLimit(log, logger.Interval(10*time.Second)),
	}
}

// Run runs the pipeline until ctx is done. It returns once all sources
// have released their resources.
func (p *Pipeline) Run(ctx context.Context) error {
	wg := sync.WaitGroup{}
	for _, src := range p.sources {
		wg.Add(1)
		go func(src trace.Source) {
			defer wg.Done()
			if err := src.Run(ctx, p.queue); err != nil && ctx.Err() == nil {
				log.Error("source %s stopped: %v", src.Name(), err)
			}
			log.Info("source %s stopped", src.Name())
		}(src)
	}

	for {
		rec, err := p.queue.Get(ctx)
		if err != nil {
			break
		}
		p.process(ctx, rec)
	}

	wg.Wait()
	return ctx.Err()
}

// process generates and sends the hint for a single record. Failures,
// including panics, are logged and do not stop the pipeline.
func (p *Pipeline) process(ctx context.Context, rec trace.Record) {
	defer func() {
		if r := recover(); r != nil {
			metrics.StageFailures.WithLabelValues("generator").Inc()
			log.Error("panic while handling record %v: %v", rec, r)
		}
	}()

	h := p.generator.Handle(rec)
	if h == nil {
		return
	}
	metrics.HintsGenerated.WithLabelValues(strconv.FormatBool(h.Match)).Inc()

	if err := p.sink.Send(ctx, h); err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.StageFailures.WithLabelValues("transport").Inc()
		p.rlog.Error("failed to send %s: %v", h, err)
	}
}
