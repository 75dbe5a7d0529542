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

package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/tierhints/tierhints/pkg/hints"
	logger "github.com/tierhints/tierhints/pkg/log"
	"github.com/tierhints/tierhints/pkg/metrics"
)

const (
	// DefaultDialTimeout bounds connection attempts.
	DefaultDialTimeout = 5 * time.Second
	// DefaultRetryInterval is the pause between delivery attempts of a matched hint.
	DefaultRetryInterval = time.Second
	// writeTimeout bounds a single hint write.
	writeTimeout = 5 * time.Second
)

// TCPSink sends hints to a remote receiver over a persistent connection.
// Matched hints are retried, reconnecting as necessary, until delivered or
// the context is done. Advisory hints are dropped if delivery fails or they
// exceed the configured rate.
type TCPSink struct {
	sync.Mutex
	addr     string
	timeout  time.Duration
	retry    time.Duration
	advisory *rate.Limiter
	conn     net.Conn
	rlog     logger.Logger
}

// NewTCPSink creates a TCP sink. The connection is opened on first use.
func NewTCPSink(cfg *ClientConfig) *TCPSink {
	host, port := cfg.Host, cfg.Port
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = DefaultPort
	}
	s := &TCPSink{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: cfg.DialTimeout.OrDefault(DefaultDialTimeout),
		retry:   cfg.RetryInterval.OrDefault(DefaultRetryInterval),
		rlog:    logger.RateLimit(log, logger.Interval(10*time.Second)),
	}
	if cfg.AdvisoryRate > 0 {
		burst := int(cfg.AdvisoryRate)
		if burst < 1 {
			burst = 1
		}
		s.advisory = rate.NewLimiter(rate.Limit(cfg.AdvisoryRate), burst)
	}
	return s
}

// Addr returns the address of the receiver.
func (s *TCPSink) Addr() string {
	return s.addr
}

func (s *TCPSink) Send(ctx context.Context, h *hints.Hint) error {
	line, err := hints.Encode(h)
	if err != nil {
		return err
	}

	if !h.Match && s.advisory != nil && !s.advisory.Allow() {
		metrics.HintsDropped.WithLabelValues(SinkRemote).Inc()
		return nil
	}

	s.Lock()
	defer s.Unlock()

	for {
		err := s.write(ctx, line)
		if err == nil {
			metrics.HintsSent.WithLabelValues(SinkRemote).Inc()
			return nil
		}
		s.close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !h.Match {
			metrics.HintsDropped.WithLabelValues(SinkRemote).Inc()
			s.rlog.Warn("dropped advisory %s: %v", h, err)
			return nil
		}

		s.rlog.Warn("failed to deliver matched hint to %s: %v, retrying", s.addr, err)
		t := time.NewTimer(s.retry)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// write writes line to the receiver, connecting first if necessary.
func (s *TCPSink) write(ctx context.Context, line []byte) error {
	if s.conn == nil {
		d := net.Dialer{Timeout: s.timeout}
		conn, err := d.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			return errors.Wrapf(err, "failed to connect to %s", s.addr)
		}
		log.Info("connected to hint receiver %s", s.addr)
		s.conn = conn
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if _, err := s.conn.Write(line); err != nil {
		return errors.Wrapf(err, "failed to write to %s", s.addr)
	}
	return nil
}

func (s *TCPSink) close() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Close closes the connection to the receiver.
func (s *TCPSink) Close() error {
	s.Lock()
	defer s.Unlock()
	s.close()
	return nil
}
