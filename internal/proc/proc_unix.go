// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package proc

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// killGroupOnCancel starts cmd in a new process group and makes context
// cancellation kill the entire group, so that compiler drivers do not leave
// orphaned cc1/ld children behind.
func killGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}
