// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package emit renders a build plan as a static build script.
package emit

import (
	"fmt"
	"path/filepath"

	"github.com/goplus/cpkg/internal/plan"
	"github.com/sahilm/fuzzy"
)

// Supported formats.
const (
	Makefile = "makefile"
	Ninja    = "ninja"
	CompDB   = "compdb"
)

// Formats lists the supported formats, default first.
var Formats = []string{Makefile, Ninja, CompDB}

// UnsupportedFormatError is returned for a format Emit does not know.
type UnsupportedFormatError struct {
	Format  string
	Suggest string
}

func (e *UnsupportedFormatError) Error() string {
	msg := fmt.Sprintf("unsupported emit format %q", e.Format)
	if e.Suggest != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggest)
	}
	return msg
}

// Emit renders p in format. An empty format selects Makefile. The output
// is a function of p alone.
func Emit(p *plan.Plan, format string) ([]byte, error) {
	switch format {
	case Makefile, "":
		return makefile(p), nil
	case Ninja:
		return ninja(p), nil
	case CompDB:
		return compdb(p)
	}
	e := &UnsupportedFormatError{Format: format}
	if matches := fuzzy.Find(format, Formats); len(matches) > 0 {
		e.Suggest = matches[0].Str
	}
	return nil, e
}

// FileName returns the conventional file name of format.
func FileName(format string) string {
	switch format {
	case Ninja:
		return "build.ninja"
	case CompDB:
		return "compile_commands.json"
	}
	return "Makefile"
}

const header = "# Generated by cpkg. DO NOT EDIT.\n"

// outputs returns the final artifact of every target.
func outputs(p *plan.Plan) []string {
	var out []string
	for _, t := range p.Targets {
		out = append(out, t.Output)
	}
	return out
}

// targetDir returns the target directory relative to the plan directory
// when it lies inside it.
func targetDir(p *plan.Plan) string {
	if rel, err := filepath.Rel(p.Dir, p.TargetDir); err == nil && filepath.IsLocal(rel) {
		return rel
	}
	return p.TargetDir
}
