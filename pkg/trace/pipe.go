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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tierhints/tierhints/pkg/metrics"
	"github.com/tierhints/tierhints/pkg/pidfile"
)

const (
	// DefaultRestartDelay is the cooldown before restarting a failed pipeline.
	DefaultRestartDelay = 5 * time.Second
	// DefaultBlockSize is the default device block size.
	DefaultBlockSize = 4096
	// sectorSize is the unit of blkparse offsets.
	sectorSize = 512
	// killTimeout is how long a terminated pipeline gets before SIGKILL.
	killTimeout = 2 * time.Second
)

// PipeSource supervises an external block trace pipeline and parses its
// output lines of the form "pid,sector,bytes,action,rwbs". Custom commands
// may leave out the action field.
type PipeSource struct {
	name         string
	command      string
	pidfile      *pidfile.File
	restartDelay time.Duration
	blockSize    int
}

func init() {
	RegisterSource("pipe", NewPipeSource)
}

// queueAction is the blkparse action of a request entering the block layer.
// blkparse prints a request once per action. Only queueing is turned into
// a record.
const queueAction = "Q"

// DefaultPipeCommand returns the blktrace pipeline for device. Tracing is
// restricted to the queue category, which still carries merges and remaps,
// so the action is part of the output as well.
func DefaultPipeCommand(device string) string {
	return fmt.Sprintf("blktrace -d %s -a queue -o - | blkparse -i - -f \"%%p,%%S,%%N,%%a,%%d\\n\"", device)
}

// NewPipeSource creates a pipe source for the given configuration.
func NewPipeSource(cfg *SourceConfig) (Source, error) {
	command := cfg.Command
	if command == "" {
		if cfg.Device == "" {
			return nil, traceError("source %s: need a device or a command", cfg.Name)
		}
		command = DefaultPipeCommand(cfg.Device)
	}
	path := cfg.PidFile
	if path == "" {
		path = pidfile.DefaultPath("tierhints-" + cfg.Name + "-pipeline")
	}
	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if blockSize%sectorSize != 0 {
		return nil, traceError("source %s: block size %d is not a multiple of %d",
			cfg.Name, blockSize, sectorSize)
	}
	return &PipeSource{
		name:         cfg.Name,
		command:      command,
		pidfile:      pidfile.New(path),
		restartDelay: cfg.RestartDelay.OrDefault(DefaultRestartDelay),
		blockSize:    blockSize,
	}, nil
}

func (s *PipeSource) Name() string {
	return s.name
}

// Run starts the pipeline and restarts it after a cooldown whenever its
// output ends or fails, until ctx is done.
func (s *PipeSource) Run(ctx context.Context, q *Queue) error {
	for {
		err := s.runOnce(ctx, q)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("%s: trace pipeline stopped (%v), restarting in %s", s.name, err, s.restartDelay)
		metrics.TraceSourceRestarts.WithLabelValues(s.name).Inc()
		if err := sleep(ctx, s.restartDelay); err != nil {
			return err
		}
	}
}

func (s *PipeSource) runOnce(ctx context.Context, q *Queue) error {
	s.killStale()

	cmd := exec.Command("sh", "-c", s.command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = os.Stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create pipeline output pipe")
	}

	log.Debug("%s: starting %q", s.name, s.command)
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to start pipeline")
	}
	if err := s.pidfile.Record(cmd.Process.Pid); err != nil {
		log.Warn("%s: %v", s.name, err)
	}
	log.Info("%s: trace pipeline running as pid %d", s.name, cmd.Process.Pid)

	stop := context.AfterFunc(ctx, func() { out.Close() })
	defer func() {
		stop()
		s.terminate(cmd)
		if err := s.pidfile.Remove(); err != nil {
			log.Warn("%s: %v", s.name, err)
		}
	}()

	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		rec, err := parseBlockLine(scanner.Text(), s.blockSize)
		if err != nil {
			metrics.TraceDecodeErrors.WithLabelValues(s.name).Inc()
			rlog.Error("%s: %v", s.name, err)
			continue
		}
		if rec == nil {
			continue
		}
		metrics.TraceRecords.WithLabelValues(s.name).Inc()
		if err := q.Put(ctx, rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// terminate stops the pipeline process group and reaps the pipeline.
func (s *PipeSource) terminate(cmd *exec.Cmd) {
	pid := cmd.Process.Pid
	done := make(chan error, 1)

	s.signal(pid, unix.SIGTERM)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(killTimeout):
		log.Warn("%s: pipeline %d did not terminate, killing it", s.name, pid)
		s.signal(pid, unix.SIGKILL)
		<-done
	}
}

// killStale kills a pipeline left behind by an earlier run. A recorded pid
// that now belongs to some other process is left alone.
func (s *PipeSource) killStale() {
	pid, err := s.pidfile.Read()
	if err != nil {
		log.Warn("%s: %v", s.name, err)
	}
	if pid > 0 {
		if s.isPipeline(pid) {
			log.Warn("%s: killing stale trace pipeline %d", s.name, pid)
			s.signal(pid, unix.SIGKILL)
		} else {
			log.Info("%s: recorded pid %d is not our pipeline, ignoring it", s.name, pid)
		}
	}
	if err := s.pidfile.Remove(); err != nil {
		log.Warn("%s: %v", s.name, err)
	}
}

// isPipeline checks that pid leads its own process group and runs our
// pipeline command.
func (s *PipeSource) isPipeline(pid int) bool {
	if pgid, err := unix.Getpgid(pid); err != nil || pgid != pid {
		return false
	}
	cmdline, err := os.ReadFile(procCmdline(pid))
	if err != nil {
		return false
	}
	args := strings.Split(strings.TrimSuffix(string(cmdline), "\x00"), "\x00")
	return len(args) == 3 && filepath.Base(args[0]) == "sh" && args[1] == "-c" && args[2] == s.command
}

func procCmdline(pid int) string {
	return "/proc/" + strconv.Itoa(pid) + "/cmdline"
}

// signal sends sig to the process group led by pid. A group that is
// already gone is not an error.
func (s *PipeSource) signal(pid int, sig unix.Signal) {
	if err := unix.Kill(-pid, sig); err != nil && err != unix.ESRCH {
		log.Warn("%s: failed to send %v to pipeline %d: %v", s.name, sig, pid, err)
	}
}

// parseBlockLine parses a "pid,sector,bytes[,action],rwbs" line into a block
// record with offset and size in blocks of blockSize bytes. Actions other
// than queueing and operations other than reads and writes yield a nil
// record and no error.
func parseBlockLine(line string, blockSize int) (*BlockTrace, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	switch len(fields) {
	case 4:
	case 5:
		if strings.TrimSpace(fields[3]) != queueAction {
			return nil, nil
		}
		fields = append(fields[:3], fields[4])
	default:
		return nil, traceError("malformed block trace line %q", line)
	}

	var write bool
	switch op := strings.TrimSpace(fields[3]); {
	case op == "":
		return nil, nil
	case op[0] == 'R':
		write = false
	case op[0] == 'W', op[0] == 'D':
		write = true
	default:
		return nil, nil
	}

	pid, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 32)
	if err != nil {
		return nil, traceError("invalid pid in block trace line %q", line)
	}
	sector, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 63)
	if err != nil {
		return nil, traceError("invalid sector in block trace line %q", line)
	}
	bytes, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return nil, traceError("invalid size in block trace line %q", line)
	}

	bs := uint64(blockSize)
	return &BlockTrace{
		Pid:    uint32(pid),
		Offset: int64(sector / (bs / sectorSize)),
		Size:   (bytes + bs - 1) / bs,
		Write:  write,
	}, nil
}
