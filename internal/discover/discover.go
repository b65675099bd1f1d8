// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package discover finds the compilable units of resolved modules.
package discover

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/modules"
	"github.com/goplus/cpkg/internal/toolchain"
)

// Kind classifies a unit.
type Kind int

const (
	Library Kind = iota
	Main
	Test
)

func (k Kind) String() string {
	switch k {
	case Main:
		return "main"
	case Test:
		return "test"
	}
	return "library"
}

// Unit is one compilable source file.
type Unit struct {
	Path   string // Absolute path
	Rel    string // Slash path relative to Module.Dir
	Kind   Kind
	Family toolchain.Family
	Module *modules.Module

	// Includes holds include directories local to the unit: its own
	// directory when that directory holds headers and is not already one of
	// the module's include directories.
	Includes []string
}

// Directories that are never walked, in addition to dot-directories.
var ignoredDirs = map[string]bool{
	"target":       true,
	"build":        true,
	"node_modules": true,
	"CMakeFiles":   true,
}

// Directory layout of a module that has a manifest.
const (
	SrcDir     = "src"
	TestsDir   = "tests"
	IncludeDir = "include"
)

var headerExts = []string{".h", ".hh", ".hpp", ".hxx", ".inc"}

// IncludeDirs returns the include directories m contributes to every
// compile: include/ and src/ when present, else the module root.
func IncludeDirs(m *modules.Module) []string {
	var dirs []string
	for _, name := range []string{IncludeDir, SrcDir} {
		dir := filepath.Join(m.Dir, name)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	if len(dirs) == 0 {
		dirs = append(dirs, m.Dir)
	}
	return dirs
}

// Ignored reports whether discovery skips directories named name.
func Ignored(name string) bool {
	return ignoredDirs[name] || strings.HasPrefix(name, ".")
}

// IsHeader reports whether name has a C or C++ header extension.
func IsHeader(name string) bool {
	return slices.Contains(headerExts, filepath.Ext(name))
}

// IsTestName reports whether a file name follows the inline test naming
// convention, e.g. "parser.test.c".
func IsTestName(name string) bool {
	ext := path.Ext(name)
	return strings.HasSuffix(strings.TrimSuffix(name, ext), ".test")
}

// IsEntry reports whether the source at rel is the entry point named by
// entry. An empty entry selects src/main.<ext> for any C or C++ extension.
func IsEntry(entry, rel string) bool {
	if entry != "" {
		return rel == path.Clean(entry)
	}
	base := path.Base(rel)
	return path.Dir(rel) == SrcDir && strings.TrimSuffix(base, path.Ext(base)) == "main"
}

// Units returns the units of m in lexical order of their slash paths.
//
// A module with a manifest contributes src/ and tests/, plus its entry point
// when the manifest names one elsewhere; a flat module contributes its whole
// tree.
// The sequence walks the file system each time it is ranged over.
// Symlinked directories are followed; a directory reached twice through
// links is skipped with a warning.
func Units(ctx context.Context, m *modules.Module) iter.Seq2[Unit, error] {
	return func(yield func(Unit, error) bool) {
		w := &walker{
			ctx:      ctx,
			m:        m,
			includes: IncludeDirs(m),
			visited:  make(map[string]bool),
			yield:    yield,
		}
		if m.Manifest == nil {
			w.walk(m.Dir, "")
			return
		}
		// Links back to the module root must not pull in files outside
		// src/ and tests/.
		if real, err := filepath.EvalSymlinks(m.Dir); err == nil {
			w.visited[real] = true
		}

		if entry := m.Manifest.Entry; entry != "" {
			entry = path.Clean(entry)
			if !strings.HasPrefix(entry, SrcDir+"/") && !strings.HasPrefix(entry, TestsDir+"/") {
				if !w.file(filepath.Join(m.Dir, filepath.FromSlash(entry)), entry, false) {
					return
				}
			}
		}
		for _, dir := range []string{SrcDir, TestsDir} {
			if !w.walk(filepath.Join(m.Dir, dir), dir) {
				return
			}
		}
	}
}

type walker struct {
	ctx      context.Context
	m        *modules.Module
	includes []string
	visited  map[string]bool
	yield    func(Unit, error) bool
}

type entry struct {
	name  string
	isDir bool
}

// walk visits dir, whose slash path relative to the module is rel. It
// returns false when the consumer stopped the iteration.
func (w *walker) walk(dir, rel string) bool {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && rel != "" {
			return true
		}
		return w.yield(Unit{}, err)
	}
	if w.visited[real] {
		ctxlog.FromContext(w.ctx).Warn("skipping directory already visited through a symlink", "module", w.m.Alias, "path", dir)
		return true
	}
	w.visited[real] = true

	des, err := os.ReadDir(dir)
	if err != nil {
		return w.yield(Unit{}, err)
	}

	var entries []entry
	hasHeaders := false
	for _, de := range des {
		isDir := de.IsDir()
		if de.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(filepath.Join(dir, de.Name()))
			if err != nil {
				ctxlog.FromContext(w.ctx).Warn("skipping broken symlink", "path", filepath.Join(dir, de.Name()))
				continue
			}
			isDir = info.IsDir()
		}
		if !isDir && IsHeader(de.Name()) {
			hasHeaders = true
		}
		entries = append(entries, entry{de.Name(), isDir})
	}
	// Sorting directories as "name/" yields lexical order of full paths.
	slices.SortFunc(entries, func(a, b entry) int {
		return strings.Compare(a.key(), b.key())
	})

	for _, e := range entries {
		p := filepath.Join(dir, e.name)
		r := path.Join(rel, e.name)
		if !e.isDir {
			if !w.file(p, r, hasHeaders) {
				return false
			}
			continue
		}
		if Ignored(e.name) {
			continue
		}
		if !w.walk(p, r) {
			return false
		}
	}
	return true
}

func (e entry) key() string {
	if e.isDir {
		return e.name + "/"
	}
	return e.name
}

// file yields the unit for p if it is a compilable source.
func (w *walker) file(p, rel string, hasHeaders bool) bool {
	family, ok := toolchain.FamilyOf(p)
	if !ok {
		return true
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true
		}
		return w.yield(Unit{}, err)
	}
	u := Unit{
		Path:   p,
		Rel:    rel,
		Kind:   w.classify(rel),
		Family: family,
		Module: w.m,
	}
	if dir := filepath.Dir(p); hasHeaders && !slices.Contains(w.includes, dir) {
		u.Includes = []string{dir}
	}
	return w.yield(u, nil)
}

func (w *walker) classify(rel string) Kind {
	if w.m.Manifest != nil && IsEntry(w.m.Manifest.Entry, rel) {
		return Main
	}
	if strings.HasPrefix(rel, TestsDir+"/") || IsTestName(path.Base(rel)) {
		return Test
	}
	return Library
}
