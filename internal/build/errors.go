// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"fmt"
	"strings"

	"github.com/qiniu/x/errors"
)

// CompileError reports a compiler that exited unsuccessfully.
type CompileError struct {
	Unit     string // Source path as passed to the compiler
	ExitCode int
	Stderr   string
}

func (e *CompileError) Error() string {
	return withStderr(fmt.Sprintf("compile %s: exit status %d", e.Unit, e.ExitCode), e.Stderr)
}

// LinkError reports a linker that exited unsuccessfully.
type LinkError struct {
	Output   string
	ExitCode int
	Stderr   string
}

func (e *LinkError) Error() string {
	return withStderr(fmt.Sprintf("link %s: exit status %d", e.Output, e.ExitCode), e.Stderr)
}

// TestFailure is one test that did not pass.
type TestFailure struct {
	Name     string
	ExitCode int
	Err      error // Build error, nil when the test ran and failed
}

func (e *TestFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s: exit status %d", e.Name, e.ExitCode)
}

func (e *TestFailure) Unwrap() error {
	return e.Err
}

// TestsFailed aggregates every failed test of a Test plan.
type TestsFailed struct {
	Total    int
	Failures errors.List
}

func (e *TestsFailed) Error() string {
	return fmt.Sprintf("%d of %d tests failed\n%s", len(e.Failures), e.Total, e.Failures.Error())
}

func (e *TestsFailed) Unwrap() []error {
	return e.Failures
}

func withStderr(msg, stderr string) string {
	if stderr = strings.TrimSpace(stderr); stderr != "" {
		return msg + "\n" + stderr
	}
	return msg
}
