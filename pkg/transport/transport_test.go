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
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierhints/tierhints/pkg/hints"
	"github.com/tierhints/tierhints/pkg/metrics"
	"github.com/tierhints/tierhints/pkg/testutils"
)

// startServer starts a receiver on a free loopback port.
func startServer(t *testing.T) (*Server, *hints.Queue, context.CancelFunc) {
	q := hints.NewQueue()
	srv := NewServer(ServerConfig{Listen: "127.0.0.1"}, q)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, q, cancel
}

func getHint(t *testing.T, q *hints.Queue) *hints.Hint {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, err := q.Get(ctx)
	require.NoError(t, err)
	return h
}

func port(t *testing.T, addr net.Addr) int {
	tcp, ok := addr.(*net.TCPAddr)
	require.True(t, ok)
	return tcp.Port
}

func TestReceiveSkipsMalformedLines(t *testing.T) {
	srv, q, _ := startServer(t)
	parseErrors := testutil.ToFloat64(metrics.HintParseErrors)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{not json\n\n" +
		`{"offset":5,"size":1,"hint_type":0,"match":true}` + "\n"))
	require.NoError(t, err)

	h := getHint(t, q)
	require.Equal(t, int64(5), h.Offset)
	require.Equal(t, uint64(1), h.Size)
	require.Equal(t, hints.HintTypeNull, h.Type)
	require.Equal(t, parseErrors+1, testutil.ToFloat64(metrics.HintParseErrors))
	require.Equal(t, 0, q.Len())
}

func TestReceiveRejectsLongLines(t *testing.T) {
	srv, q, _ := startServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	long := `{"offset":1,"size":1,"hint_type":0,"pad":"` + strings.Repeat("x", MaxLineLength) + `"}` + "\n"
	_, err = conn.Write([]byte(long))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err, "connection should be closed")
	require.Equal(t, 0, q.Len())
}

func TestReceiveDiscardsUnterminatedLine(t *testing.T) {
	srv, q, _ := startServer(t)
	received := testutil.ToFloat64(metrics.HintsReceived)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte(`{"offset":9,"size":1,"hint_type":0,"match":true}` + "\n" +
		`{"offset":10,"size":1,"hint_type":0,"match":true}`))
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.Equal(t, int64(9), getHint(t, q).Offset)

	// the complete hint resent on a new connection is the only copy
	conn, err = net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`{"offset":10,"size":1,"hint_type":0,"match":true}` + "\n"))
	require.NoError(t, err)

	require.Equal(t, int64(10), getHint(t, q).Offset)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, q.Len())
	require.Equal(t, received+2, testutil.ToFloat64(metrics.HintsReceived))
}

func TestScanHintLines(t *testing.T) {
	advance, token, err := scanHintLines([]byte("ab\ncd"), false)
	require.NoError(t, err)
	require.Equal(t, 3, advance)
	require.Equal(t, "ab", string(token))

	advance, token, err = scanHintLines([]byte("cd"), false)
	require.NoError(t, err)
	require.Equal(t, 0, advance)
	require.Nil(t, token)

	_, _, err = scanHintLines([]byte("cd"), true)
	require.ErrorIs(t, err, errUnterminated)

	advance, token, err = scanHintLines(nil, true)
	require.NoError(t, err)
	require.Equal(t, 0, advance)
	require.Nil(t, token)
}

func TestTCPSinkDelivers(t *testing.T) {
	srv, q, _ := startServer(t)
	sink, err := NewSink(&ClientConfig{Type: SinkRemote, Host: "127.0.0.1", Port: port(t, srv.Addr())})
	require.NoError(t, err)
	defer sink.Close()

	sent := []*hints.Hint{
		hints.NullHint(1, 1),
		hints.TierHint(2, 8, 1),
		{Offset: 3, Size: 1, Type: hints.HintTypeNull},
	}
	ctx := context.Background()
	for _, h := range sent {
		require.NoError(t, sink.Send(ctx, h))
	}
	for _, h := range sent {
		require.Equal(t, h, getHint(t, q))
	}
}

func TestTCPSinkRetriesMatchedHints(t *testing.T) {
	// the receiver is started only after the first attempts fail
	p := testutils.UnusedPort(t)

	sink := NewTCPSink(&ClientConfig{Host: "127.0.0.1", Port: p})
	sink.retry = 20 * time.Millisecond
	defer sink.Close()

	sent := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sent <- sink.Send(ctx, hints.NullHint(42, 1))
	}()

	time.Sleep(100 * time.Millisecond)
	q := hints.NewQueue()
	srv := NewServer(ServerConfig{Listen: "127.0.0.1", Port: p}, q)
	require.NoError(t, srv.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	require.NoError(t, <-sent)
	require.Equal(t, int64(42), getHint(t, q).Offset)
}

func TestTCPSinkDropsAdvisoryHints(t *testing.T) {
	p := testutils.UnusedPort(t)

	sink := NewTCPSink(&ClientConfig{Host: "127.0.0.1", Port: p})
	defer sink.Close()
	dropped := testutil.ToFloat64(metrics.HintsDropped.WithLabelValues(SinkRemote))

	advisory := &hints.Hint{Offset: 1, Size: 1, Type: hints.HintTypeNull}
	require.NoError(t, sink.Send(context.Background(), advisory))
	require.Equal(t, dropped+1, testutil.ToFloat64(metrics.HintsDropped.WithLabelValues(SinkRemote)))
}

func TestTCPSinkMatchedHintCancel(t *testing.T) {
	p := testutils.UnusedPort(t)

	sink := NewTCPSink(&ClientConfig{Host: "127.0.0.1", Port: p})
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sink.Send(ctx, hints.NullHint(1, 1)), context.DeadlineExceeded)
}

func TestAdvisoryRateLimit(t *testing.T) {
	srv, q, _ := startServer(t)
	sink := NewTCPSink(&ClientConfig{Host: "127.0.0.1", Port: port(t, srv.Addr()), AdvisoryRate: 1})
	defer sink.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Send(ctx, &hints.Hint{Offset: int64(i), Size: 1}))
	}
	require.NoError(t, sink.Send(ctx, hints.NullHint(100, 1)))

	require.Equal(t, int64(0), getHint(t, q).Offset)
	require.Equal(t, int64(100), getHint(t, q).Offset)
}

func TestWriterSink(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := NewWriterSink("test", buf)
	require.NoError(t, sink.Send(context.Background(), hints.NullHint(7, 2)))
	require.NoError(t, sink.Send(context.Background(), hints.TierHint(8, 1, 2)))
	require.Equal(t,
		`{"offset":7,"size":2,"hint_type":0,"match":true}`+"\n"+
			`{"offset":8,"size":1,"hint_type":1,"hint_data":2}`+"\n",
		buf.String())
}

func TestNewSink(t *testing.T) {
	sink, err := NewSink(&ClientConfig{Type: SinkStdout})
	require.NoError(t, err)
	require.IsType(t, &WriterSink{}, sink)

	sink, err = NewSink(&ClientConfig{})
	require.NoError(t, err)
	require.Equal(t, "localhost:1337", sink.(*TCPSink).Addr())

	_, err = NewSink(&ClientConfig{Type: "carrier-pigeon"})
	require.Error(t, err)
}
