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
	"bufio"
	"bytes"
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/netutil"

	"github.com/tierhints/tierhints/pkg/hints"
	logger "github.com/tierhints/tierhints/pkg/log"
	"github.com/tierhints/tierhints/pkg/metrics"
)

const (
	// MaxLineLength is the longest hint line a receiver accepts.
	MaxLineLength = 64 * 1024
	// DefaultMaxConnections limits concurrent generator connections.
	DefaultMaxConnections = 16
)

// ServerConfig configures a hint receiver.
type ServerConfig struct {
	// Listen is the address to listen on, empty for all interfaces.
	Listen string `json:"listen,omitempty"`
	// Port is the port to listen on.
	Port int `json:"port,omitempty"`
	// MaxConnections limits concurrent connections, 0 for the default.
	MaxConnections int `json:"maxConnections,omitempty"`
}

// Server receives JSON-lines hints from generators and queues them for
// the hint handler.
type Server struct {
	cfg      ServerConfig
	queue    *hints.Queue
	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	rlog         logger.Logger
}

// NewServer creates a receiver queueing hints on q.
func NewServer(cfg ServerConfig, q *hints.Queue) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	return &Server{
		cfg:      cfg,
		queue:    q,
		conns:    make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
		rlog:     logger.RateLimit(log, logger.Interval(10*time.Second)),
	}
}

// Listen opens the listening socket. A zero port picks a free one.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.cfg.Listen, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	s.listener = netutil.LimitListener(ln, s.cfg.MaxConnections)
	log.Info("hint receiver listening on %s", s.listener.Addr())
	return nil
}

// Addr returns the address the server listens on, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done or Stop is called. It
// returns once all connections have been closed.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	var err error
	for {
		conn, aerr := s.listener.Accept()
		if aerr != nil {
			select {
			case <-s.shutdown:
			default:
				err = errors.Wrap(aerr, "failed to accept connection")
				s.Stop()
			}
			break
		}
		if !s.track(conn) {
			conn.Close()
			break
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}

	s.wg.Wait()
	return err
}

// Stop stops accepting connections and closes the active ones.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
	})
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.shutdown:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// serveConn reads hints from a single connection until it is closed.
// Malformed lines are logged and skipped.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	peer := conn.RemoteAddr().String()
	log.Info("accepted connection from %s", peer)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), MaxLineLength)
	scanner.Split(scanHintLines)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		h, err := hints.Decode(line)
		if err != nil {
			metrics.HintParseErrors.Inc()
			s.rlog.Warn("%s: skipping malformed hint: %v", peer, err)
			continue
		}
		metrics.HintsReceived.Inc()
		log.Debug("%s: received %s", peer, h)
		s.queue.Put(h)
	}

	select {
	case <-s.shutdown:
		return
	default:
	}
	switch err := scanner.Err(); {
	case err == errUnterminated:
		log.Warn("%s: connection closed in the middle of a hint, discarding it", peer)
		return
	case err != nil:
		log.Warn("%s: closing connection: %v", peer, err)
		return
	}
	log.Info("connection from %s closed", peer)
}

// errUnterminated is returned for data left without a newline at EOF.
var errUnterminated = errors.New("unterminated hint line")

// scanHintLines splits newline-terminated lines. A trailing partial line
// is an error, not a final token.
func scanHintLines(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return 0, nil, errUnterminated
	}
	return 0, nil, nil
}
