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
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/tierhints/tierhints/pkg/config"
	logger "github.com/tierhints/tierhints/pkg/log"
)

const (
	// DefaultNoDataInterval is how long a source sleeps when no data is available.
	DefaultNoDataInterval = time.Second
)

var (
	log = logger.NewLogger("trace")
	// per-record failures can recur at frame rate
	rlog = logger.RateLimit(log, logger.Interval(10*time.Second))
)

// Source produces trace records into a queue until its context is done.
type Source interface {
	// Name returns the name of the source.
	Name() string
	// Run reads records and puts them into q. Failures reading or
	// decoding a single record are logged and reading continues. Run
	// returns ctx.Err() once ctx is done and all resources are released.
	Run(ctx context.Context, q *Queue) error
}

// SourceConfig is the configuration of a single trace source.
type SourceConfig struct {
	// Name of the source, used in logs and metrics.
	Name string `json:"name"`
	// Type of the source: frame, ringbuf or pipe.
	Type string `json:"type"`
	// Format is the frame format of frame and ringbuf sources.
	Format string `json:"format,omitempty"`
	// Path is the trace device of a frame source or the pinned map of a
	// ringbuf source.
	Path string `json:"path,omitempty"`
	// NoDataInterval is the sleep between polls when no data is available.
	NoDataInterval config.Duration `json:"noDataInterval,omitempty"`

	// Device is the block device a pipe source traces.
	Device string `json:"device,omitempty"`
	// Command overrides the trace pipeline of a pipe source.
	Command string `json:"command,omitempty"`
	// PidFile tracks the pipeline of a pipe source across daemon restarts.
	PidFile string `json:"pidFile,omitempty"`
	// RestartDelay is the cooldown before restarting a failed pipeline.
	RestartDelay config.Duration `json:"restartDelay,omitempty"`
	// BlockSize is the device block size records are converted to.
	BlockSize int `json:"blockSize,omitempty"`
}

// sources is a map of source type -> source creator
var sources = make(map[string]func(*SourceConfig) (Source, error))

// RegisterSource registers a source type.
func RegisterSource(kind string, create func(*SourceConfig) (Source, error)) {
	sources[kind] = create
}

// Sources returns the names of all registered source types.
func Sources() []string {
	keys := make([]string, 0, len(sources))
	for key := range sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// NewSource creates a source for the given configuration.
func NewSource(cfg *SourceConfig) (Source, error) {
	create, ok := sources[cfg.Type]
	if !ok {
		return nil, traceError("unknown source type %q, supported: %v", cfg.Type, Sources())
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Type
	}
	return create(cfg)
}

// frameFormat looks up the frame format of a frame or ringbuf source.
func (cfg *SourceConfig) frameFormat() (*Format, error) {
	f := GetFormat(cfg.Format)
	if f == nil {
		return nil, traceError("source %s: unknown frame format %q, supported: %v",
			cfg.Name, cfg.Format, Formats())
	}
	return f, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// traceError produces a formatted trace-specific error.
func traceError(format string, args ...interface{}) error {
	return errors.Errorf("trace: "+format, args...)
}
