// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tools drives the optional formatter and documentation tools.
package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/goplus/cpkg/internal/discover"
	"github.com/goplus/cpkg/internal/modules"
	"github.com/goplus/cpkg/internal/proc"
	"github.com/goplus/cpkg/internal/toolchain"
)

// ToolError reports a tool that exited unsuccessfully.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Tool, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\n" + s
	}
	return msg
}

// NoToolError is returned when none of the tools that can serve a purpose
// is installed.
type NoToolError struct {
	Purpose string // "formatter" or "documentation generator"
	Tried   []string
}

func (e *NoToolError) Error() string {
	return fmt.Sprintf("no %s found (tried %s)", e.Purpose, strings.Join(e.Tried, ", "))
}

// pick returns the first of def followed by order that capab has.
func pick(capab *toolchain.Capability, purpose, def string, order []string) (name, path string, err error) {
	tried := order
	if def != "" {
		tried = append([]string{def}, slices.DeleteFunc(slices.Clone(order), func(s string) bool { return s == def })...)
	}
	for _, name := range tried {
		if path, ok := capab.Tool(name); ok {
			return name, path, nil
		}
	}
	return "", "", &NoToolError{Purpose: purpose, Tried: tried}
}

func run(ctx context.Context, sp proc.Spawner, tool string, cmd proc.Command) error {
	res, err := sp.Spawn(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%s: %w", tool, err)
	}
	if res.ExitCode != 0 {
		return &ToolError{Tool: tool, ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}
	return nil
}

// SourceFiles returns the C and C++ sources and headers of m in lexical
// order: src/, include/ and tests/ for a module with a manifest, the whole
// tree otherwise.
func SourceFiles(m *modules.Module) ([]string, error) {
	roots := []string{m.Dir}
	if m.Manifest != nil {
		roots = []string{
			filepath.Join(m.Dir, discover.SrcDir),
			filepath.Join(m.Dir, discover.IncludeDir),
			filepath.Join(m.Dir, discover.TestsDir),
		}
	}
	var files []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == root && errors.Is(err, fs.ErrNotExist) {
					return fs.SkipDir
				}
				return err
			}
			if d.IsDir() {
				if p != root && discover.Ignored(d.Name()) {
					return fs.SkipDir
				}
				return nil
			}
			if _, ok := toolchain.FamilyOf(p); ok || discover.IsHeader(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(files)
	return files, nil
}

// Open shows path with the desktop's default application.
func Open(ctx context.Context, sp proc.Spawner, path string) error {
	var cmd proc.Command
	switch runtime.GOOS {
	case "darwin":
		cmd = proc.Command{Name: "open", Args: []string{path}}
	case "windows":
		cmd = proc.Command{Name: "cmd", Args: []string{"/c", "start", "", path}}
	default:
		cmd = proc.Command{Name: "xdg-open", Args: []string{path}}
	}
	return run(ctx, sp, cmd.Name, cmd)
}
