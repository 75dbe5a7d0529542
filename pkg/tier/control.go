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

package tier

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tierhints/tierhints/pkg/hints"
)

const (
	// DefaultControlDevice is the control device of the tiering driver.
	DefaultControlDevice = "/dev/tiercontrol"
	// HintInject is the ioctl command for injecting a placement decision.
	HintInject = 0xFE0B
)

// ControlDevice is an open handle to the driver's control device.
type ControlDevice struct {
	path string
	fd   int
}

// OpenControlDevice opens the control device at path.
func OpenControlDevice(path string) (*ControlDevice, error) {
	if path == "" {
		path = DefaultControlDevice
	}
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open control device %s", path)
	}
	return &ControlDevice{path: path, fd: fd}, nil
}

// Inject hands a placement decision to the driver in the driver's own
// struct layout. The write waiting for the decision is released by the
// driver.
func (d *ControlDevice) Inject(entry *hints.TierEntry) error {
	buf, err := entry.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "failed to marshal tier entry")
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), HintInject, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errors.Wrapf(errno, "%s: hint injection of %d+%d failed", d.path, entry.Offset, entry.Size)
	}
	return nil
}

// Path returns the path of the device.
func (d *ControlDevice) Path() string {
	return d.path
}

// Close closes the device.
func (d *ControlDevice) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}
