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
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/tierhints/tierhints/pkg/metrics"
)

// maxDeviceWait bounds a single wait for a missing trace device to appear.
const maxDeviceWait = 30 * time.Second

// FrameSource reads fixed-size binary frames from a trace device.
type FrameSource struct {
	name   string
	path   string
	format *Format
	cfg    *SourceConfig
}

func init() {
	RegisterSource("frame", NewFrameSource)
}

// NewFrameSource creates a frame source for the given configuration.
func NewFrameSource(cfg *SourceConfig) (Source, error) {
	format, err := cfg.frameFormat()
	if err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, traceError("source %s: missing trace device path", cfg.Name)
	}
	return &FrameSource{
		name:   cfg.Name,
		path:   cfg.Path,
		format: format,
		cfg:    cfg,
	}, nil
}

func (s *FrameSource) Name() string {
	return s.name
}

// Run opens the trace device and reads one frame per read call. A short or
// empty read means no data is available: the partial frame is discarded and
// reading is retried after the no-data interval.
func (s *FrameSource) Run(ctx context.Context, q *Queue) error {
	noData := s.cfg.NoDataInterval.OrDefault(DefaultNoDataInterval)

	for {
		f, err := os.Open(s.path)
		if err != nil {
			rlog.Error("%s: failed to open %s: %v", s.name, s.path, err)
			if os.IsNotExist(err) {
				err = waitForPath(ctx, s.path, maxDeviceWait)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err == nil {
					continue
				}
				rlog.Warn("%s: %v", s.name, err)
			}
			if err := sleep(ctx, noData); err != nil {
				return err
			}
			continue
		}

		log.Info("%s: reading %s frames from %s", s.name, s.format.Name, s.path)
		err = s.read(ctx, f, q, noData)
		f.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("%s: reopening %s: %v", s.name, s.path, err)
		metrics.TraceSourceRestarts.WithLabelValues(s.name).Inc()
	}
}

// read reads frames from r until ctx is done or r fails permanently.
func (s *FrameSource) read(ctx context.Context, r io.ReadCloser, q *Queue, noData time.Duration) error {
	stop := context.AfterFunc(ctx, func() { r.Close() })
	defer stop()

	buf := make([]byte, s.format.Length)
	for {
		n, err := r.Read(buf)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case err != nil && err != io.EOF:
			if errors.Is(err, os.ErrClosed) {
				return err
			}
			rlog.Error("%s: read failed: %v", s.name, err)
			if err := sleep(ctx, noData); err != nil {
				return err
			}
			continue
		case n < len(buf):
			if err := sleep(ctx, noData); err != nil {
				return err
			}
			continue
		}

		rec, err := s.format.DecodeFrame(buf)
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
