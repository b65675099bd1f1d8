// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package modules

import (
	"fmt"
	"strings"

	"github.com/goplus/cpkg/pkgs/mod/module"
)

// NotFoundError reports a dependency whose directory does not exist.
type NotFoundError struct {
	Alias string
	Path  string // As declared
	Dir   string // As resolved
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dependency %q: %s: no such directory", e.Alias, e.Path)
}

// FetchError reports a git dependency that could not be fetched.
type FetchError struct {
	Alias  string
	Source module.Source
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("dependency %q: fetch %s: %v", e.Alias, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CycleError reports a dependency cycle. Cycle starts and ends with the
// same alias.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Cycle, " -> ")
}

// ConflictError reports two declarations of one alias with different
// sources.
type ConflictError struct {
	Alias string
	Have  module.Source // Source the alias was first resolved from
	Want  module.Source // Source declared by By
	By    string        // Alias of the declaring module
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting sources for dependency %q: resolved from %s, but %s requires %s", e.Alias, e.Have, e.By, e.Want)
}
