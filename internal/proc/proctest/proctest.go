// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package proctest provides a recording proc.Spawner for tests.
package proctest

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/goplus/cpkg/internal/proc"
)

// Recorder is a proc.Spawner that records every command instead of running
// it. It is safe for concurrent use.
type Recorder struct {
	// Handler, when set, decides the result of each command.
	Handler func(cmd proc.Command) (proc.Result, error)

	// CreateOutputs makes the recorder write an empty file at the path that
	// follows "-o", the way a compiler or linker would.
	CreateOutputs bool

	mu    sync.Mutex
	calls []proc.Command
}

var _ proc.Spawner = (*Recorder)(nil)

func (r *Recorder) Spawn(ctx context.Context, cmd proc.Command) (proc.Result, error) {
	if err := ctx.Err(); err != nil {
		return proc.Result{}, err
	}
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	res := proc.Result{}
	if r.Handler != nil {
		var err error
		if res, err = r.Handler(cmd); err != nil {
			return res, err
		}
	}
	if r.CreateOutputs && res.ExitCode == 0 {
		if out := OutputOf(cmd); out != "" {
			if !filepath.IsAbs(out) && cmd.Dir != "" {
				out = filepath.Join(cmd.Dir, out)
			}
			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return res, err
			}
			if err := os.WriteFile(out, nil, 0755); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// Calls returns the recorded commands in spawn order.
func (r *Recorder) Calls() []proc.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Argv returns each recorded command as name followed by its arguments.
func (r *Recorder) Argv() [][]string {
	var out [][]string
	for _, c := range r.Calls() {
		out = append(out, append([]string{c.Name}, c.Args...))
	}
	return out
}

// Reset forgets all recorded commands.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// OutputOf returns the argument that follows "-o" in cmd, or "".
func OutputOf(cmd proc.Command) string {
	if i := slices.Index(cmd.Args, "-o"); i >= 0 && i+1 < len(cmd.Args) {
		return cmd.Args[i+1]
	}
	return ""
}

// FailOn returns a Handler that exits with code and stderr for every command
// that has an argument ending in suffix, and succeeds otherwise.
func FailOn(suffix string, code int, stderr string) func(proc.Command) (proc.Result, error) {
	return func(cmd proc.Command) (proc.Result, error) {
		if cmd.Name == suffix || strings.HasSuffix(cmd.Name, suffix) {
			return proc.Result{ExitCode: code, Stderr: []byte(stderr)}, nil
		}
		for _, a := range cmd.Args {
			if strings.HasSuffix(a, suffix) {
				return proc.Result{ExitCode: code, Stderr: []byte(stderr)}, nil
			}
		}
		return proc.Result{}, nil
	}
}
