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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tierhints/tierhints/pkg/config"
	"github.com/tierhints/tierhints/pkg/metrics"
)

// runSource runs src in the background, returning a function that cancels
// it and returns the result of Run.
func runSource(t *testing.T, src Source, q *Queue) func() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, q)
	}()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatalf("source %s did not stop", src.Name())
		}
		return nil
	}
}

func getRecord(t *testing.T, q *Queue) Record {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r, err := q.Get(ctx)
	require.NoError(t, err)
	return r
}

func TestNewSource(t *testing.T) {
	require.Equal(t, []string{"frame", "pipe", "ringbuf"}, Sources())

	_, err := NewSource(&SourceConfig{Type: "carrier-pigeon"})
	require.Error(t, err)
	_, err = NewSource(&SourceConfig{Type: "frame", Format: "nope", Path: "/dev/null"})
	require.Error(t, err)
	_, err = NewSource(&SourceConfig{Type: "frame", Format: "file"})
	require.Error(t, err)
	_, err = NewSource(&SourceConfig{Type: "ringbuf", Format: "block"})
	require.Error(t, err)

	src, err := NewSource(&SourceConfig{Type: "frame", Format: "file", Path: "/dev/null"})
	require.NoError(t, err)
	require.Equal(t, "frame", src.Name())

	src, err = NewSource(&SourceConfig{Name: "rb", Type: "ringbuf", Format: "block", Path: "/sys/fs/bpf/x"})
	require.NoError(t, err)
	require.Equal(t, "rb", src.Name())
}

func TestFrameSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file_trace")

	var data []byte
	data = append(data, encodeFile(&FileTrace{Pid: 1, Inode: 13, Size: 10})...)
	data = append(data, encodeFile(&FileTrace{Pid: 2, Offset: -5})...)
	data = append(data, encodeFile(&FileTrace{Pid: 3, Inode: 14, Write: true})...)
	data = append(data, make([]byte, 10)...)
	require.NoError(t, os.WriteFile(path, data, 0644))

	src, err := NewSource(&SourceConfig{
		Name:           "test-frames",
		Type:           "frame",
		Format:         "file",
		Path:           path,
		NoDataInterval: config.Duration(10 * time.Millisecond),
	})
	require.NoError(t, err)

	q := NewQueue(8)
	stop := runSource(t, src, q)

	r := getRecord(t, q)
	require.Equal(t, uint32(1), r.(*FileTrace).Pid)
	r = getRecord(t, q)
	require.Equal(t, uint32(3), r.(*FileTrace).Pid)
	require.True(t, r.IsWrite())

	// the partial trailing frame is never delivered
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, q.Len())

	require.ErrorIs(t, stop(), context.Canceled)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.TraceDecodeErrors.WithLabelValues("test-frames")))
}

func TestFrameSourceWaitsForDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "block_trace")

	src, err := NewSource(&SourceConfig{
		Name:           "late-device",
		Type:           "frame",
		Format:         "block",
		Path:           path,
		NoDataInterval: config.Duration(10 * time.Millisecond),
	})
	require.NoError(t, err)

	q := NewQueue(8)
	stop := runSource(t, src, q)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, encodeBlock(&BlockTrace{Pid: 7, Offset: 100, Size: 4, Write: true}), 0644))

	r := getRecord(t, q)
	require.Equal(t, &BlockTrace{Pid: 7, Offset: 100, Size: 4, Write: true}, r)
	require.ErrorIs(t, stop(), context.Canceled)
}
