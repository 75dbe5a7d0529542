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

package trace

import (
	"context"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/pkg/errors"

	"github.com/tierhints/tierhints/pkg/metrics"
)

// RingbufSource reads binary frames from a BPF ring buffer map pinned in
// bpffs by the program producing the trace.
type RingbufSource struct {
	name   string
	path   string
	format *Format
	cfg    *SourceConfig
}

func init() {
	RegisterSource("ringbuf", NewRingbufSource)
}

// NewRingbufSource creates a ring buffer source for the given configuration.
func NewRingbufSource(cfg *SourceConfig) (Source, error) {
	format, err := cfg.frameFormat()
	if err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, traceError("source %s: missing pinned ring buffer path", cfg.Name)
	}
	return &RingbufSource{
		name:   cfg.Name,
		path:   cfg.Path,
		format: format,
		cfg:    cfg,
	}, nil
}

func (s *RingbufSource) Name() string {
	return s.name
}

// Run opens the pinned map and reads samples until ctx is done. The map is
// retried after the no-data interval if it is not pinned yet.
func (s *RingbufSource) Run(ctx context.Context, q *Queue) error {
	retry := s.cfg.NoDataInterval.OrDefault(DefaultNoDataInterval)

	for {
		err := s.read(ctx, q)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rlog.Error("%s: ring buffer %s: %v", s.name, s.path, err)
		metrics.TraceSourceRestarts.WithLabelValues(s.name).Inc()
		if err := sleep(ctx, retry); err != nil {
			return err
		}
	}
}

func (s *RingbufSource) read(ctx context.Context, q *Queue) error {
	m, err := ebpf.LoadPinnedMap(s.path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to load pinned map")
	}
	defer m.Close()

	rd, err := ringbuf.NewReader(m)
	if err != nil {
		return errors.Wrap(err, "failed to create reader")
	}
	stop := context.AfterFunc(ctx, func() { rd.Close() })
	defer stop()
	defer rd.Close()

	log.Info("%s: reading %s frames from ring buffer %s", s.name, s.format.Name, s.path)

	for {
		sample, err := rd.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return err
			}
			return errors.Wrap(err, "read failed")
		}

		if len(sample.RawSample) < s.format.Length {
			metrics.TraceDecodeErrors.WithLabelValues(s.name).Inc()
			rlog.Error("%s: short sample of %d bytes", s.name, len(sample.RawSample))
			continue
		}
		rec, err := s.format.DecodeFrame(sample.RawSample[:s.format.Length])
		if err != nil {
			metrics.TraceDecodeErrors.WithLabelValues(s.name).Inc()
			rlog.Error("%s: %v", s.name, err)
			continue
		}

		metrics.TraceRecords.WithLabelValues(s.name).Inc()
		if err := q.Put(ctx, rec); err != nil {
			return err
		}
	}
}
