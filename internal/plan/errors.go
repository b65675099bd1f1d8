// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goplus/cpkg/internal/toolchain"
)

// ErrNoEntryPoint is returned for Build and Run plans when the project has
// no main unit.
var ErrNoEntryPoint = errors.New("no entry point")

// AmbiguousEntryPointError is returned when the project has more than one
// main unit.
type AmbiguousEntryPointError struct {
	Units []string // Slash paths relative to the project
}

func (e *AmbiguousEntryPointError) Error() string {
	return fmt.Sprintf("ambiguous entry point: %s; set package.entry in the manifest", strings.Join(e.Units, ", "))
}

// TestNameConflictError is returned when two test units map to the same
// executable name.
type TestNameConflictError struct {
	Name  string
	Units []string // Slash paths relative to the project
}

func (e *TestNameConflictError) Error() string {
	return fmt.Sprintf("tests %s both build target/test/%s; rename one of them", strings.Join(e.Units, " and "), e.Name)
}

// NoToolchainError reports a language family that no available compiler
// can build.
type NoToolchainError struct {
	Family toolchain.Family
	Pin    string // Compiler kind pinned by the manifest, if any
}

func (e *NoToolchainError) Error() string {
	if e.Pin != "" {
		return fmt.Sprintf("no %s compiler of kind %s available", e.Family, e.Pin)
	}
	return fmt.Sprintf("no %s compiler available", e.Family)
}
