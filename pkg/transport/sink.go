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

// Package transport delivers hints over TCP as JSON lines, and receives them.
package transport

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/tierhints/tierhints/pkg/config"
	"github.com/tierhints/tierhints/pkg/hints"
	logger "github.com/tierhints/tierhints/pkg/log"
	"github.com/tierhints/tierhints/pkg/metrics"
)

const (
	// DefaultPort is the default hint receiver port.
	DefaultPort = 1337
	// SinkRemote sends hints to a remote receiver.
	SinkRemote = "remote"
	// SinkStdout prints hints to standard output.
	SinkStdout = "stdout"
)

var log = logger.NewLogger("transport")

// Sink delivers hints one at a time, in the order given.
type Sink interface {
	// Send delivers h.
	Send(ctx context.Context, h *hints.Hint) error
	// Close releases the resources of the sink.
	Close() error
}

// ClientConfig selects and configures the hint sink.
type ClientConfig struct {
	// Type is the sink type, remote or stdout.
	Type string `json:"type"`
	// Host is the receiver host of a remote sink.
	Host string `json:"host,omitempty"`
	// Port is the receiver port of a remote sink.
	Port int `json:"port,omitempty"`
	// DialTimeout bounds connection attempts.
	DialTimeout config.Duration `json:"dialTimeout,omitempty"`
	// RetryInterval is the pause between attempts to deliver a matched hint.
	RetryInterval config.Duration `json:"retryInterval,omitempty"`
	// AdvisoryRate limits advisory hints per second, 0 for no limit.
	AdvisoryRate float64 `json:"advisoryRate,omitempty"`
}

// NewSink creates the sink for the given configuration.
func NewSink(cfg *ClientConfig) (Sink, error) {
	switch cfg.Type {
	case SinkRemote, "":
		return NewTCPSink(cfg), nil
	case SinkStdout:
		return NewWriterSink(SinkStdout, os.Stdout), nil
	}
	return nil, errors.Errorf("transport: unknown hint client %q, supported: %s, %s",
		cfg.Type, SinkRemote, SinkStdout)
}

// WriterSink writes hints in wire format to an io.Writer.
type WriterSink struct {
	sync.Mutex
	name string
	w    io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(name string, w io.Writer) *WriterSink {
	return &WriterSink{name: name, w: w}
}

func (s *WriterSink) Send(_ context.Context, h *hints.Hint) error {
	line, err := hints.Encode(h)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return errors.Wrapf(err, "%s: failed to write hint", s.name)
	}
	metrics.HintsSent.WithLabelValues(s.name).Inc()
	return nil
}

func (s *WriterSink) Close() error {
	return nil
}
