// Copyright 2022 Intel Corporation. All Rights Reserved.
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

package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/errors"
)

// File is a PID file. It either records the PID of the current process,
// or that of a process we supervise.
type File struct {
	sync.Mutex
	path string
	file *os.File
}

// New returns a PID file for the given path. An empty path selects the
// default path for the running binary.
func New(path string) *File {
	if path == "" {
		path = DefaultPath(filepath.Base(os.Args[0]))
	}
	return &File{path: path}
}

// Path returns the path of the PID file.
func (f *File) Path() string {
	return f.path
}

// Write opens the PID file and writes os.Getpid() to it. If the PID file already
// exists Write() fails with an error. On successful completion, Write keeps the
// PID file open.
func (f *File) Write() error {
	f.Lock()
	defer f.Unlock()

	if f.file != nil {
		return nil
	}

	err := os.MkdirAll(filepath.Dir(f.path), 0755)
	if err != nil {
		return errors.Wrap(err, "failed to create PID file")
	}

	f.file, err = os.OpenFile(f.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to create PID file")
	}

	if _, err = f.file.Write([]byte(fmt.Sprintf("%d\n", os.Getpid()))); err != nil {
		f.close()
		return errors.Wrap(err, "failed to write PID file")
	}

	return nil
}

// Record stores pid in the PID file, replacing any earlier content. It is
// used to track processes we start but do not run as.
func (f *File) Record(pid int) error {
	f.Lock()
	defer f.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return errors.Wrap(err, "failed to create PID file")
	}
	if err := os.WriteFile(f.path, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		return errors.Wrapf(err, "failed to record PID %d", pid)
	}
	return nil
}

// Read reads the content of the PID file. It returns the process ID found
// in the file, 0 if the file does not exist. If reading an integer process
// ID fails Read() returns -1 and an error.
func (f *File) Read() (int, error) {
	buf, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return -1, errors.Wrap(err, "failed to read PID file")
	}

	pid, err := strconv.Atoi(strings.TrimRight(string(buf), "\n"))
	if err != nil {
		return -1, errors.Wrapf(err, "invalid PID (%q) in PID file", string(buf))
	}

	return pid, nil
}

// Close closes the PID file and truncates it to zero length.
func (f *File) Close() {
	f.Lock()
	defer f.Unlock()
	f.close()
}

func (f *File) close() {
	if f.file != nil {
		f.file.Truncate(0)
		f.file.Close()
		f.file = nil
	}
}

// Remove removes the PID file unconditionally, regardless if we had created
// the PID file or not.
func (f *File) Remove() error {
	f.Lock()
	defer f.Unlock()

	f.close()
	err := os.Remove(f.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// OwnerPid returns the ID of the process owning the PID file. 0 is returned
// if it is known that no process owns the file. -1 and an error is returned
// if the owner or its existence could not be determined.
func (f *File) OwnerPid() (int, error) {
	pid, err := f.Read()
	if err != nil {
		return -1, err
	}
	if pid == 0 {
		return 0, nil
	}

	p, err := os.FindProcess(pid)
	if err != nil {
		return -1, errors.Wrapf(err, "FindProcess() failed for PID %d", pid)
	}

	err = p.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return pid, nil
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return 0, nil
	}

	return -1, errors.Wrapf(err, "failed to check process %d", pid)
}

// DefaultPath returns the default PID file path for name.
func DefaultPath(name string) string {
	if euid := os.Geteuid(); euid > 0 {
		return filepath.Join("/tmp", name+".pid")
	}
	return filepath.Join("/", "var", "run", name+".pid")
}
