// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package proc spawns child processes behind a small interface so that
// planning and execution can be tested without real compilers.
package proc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes one child process.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // Appended to the parent environment

	Stdin  io.Reader
	Stdout io.Writer // Captured into Result.Stdout when nil
	Stderr io.Writer // Captured into Result.Stderr when nil

	// Interactive keeps the child in the caller's process group so that it
	// owns the terminal. Used when running built programs.
	Interactive bool
}

// String returns the command line in a form suitable for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the outcome of a process that ran to completion.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Spawner runs child processes.
//
// A non-zero exit status is reported through Result.ExitCode with a nil
// error; the error is reserved for processes that could not be started or
// were interrupted by ctx.
type Spawner interface {
	Spawn(ctx context.Context, cmd Command) (Result, error)
}

// OS spawns real processes. When ctx is done the whole process group of the
// child is killed.
type OS struct{}

var _ Spawner = OS{}

func (OS) Spawn(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = c.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = &stderr
	}
	if !c.Interactive {
		killGroupOnCancel(cmd)
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}
