// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goplus/cpkg/internal/archive"
	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/discover"
	"github.com/goplus/cpkg/internal/modules"
	"github.com/goplus/cpkg/internal/plan"
	"github.com/goplus/cpkg/internal/proc"
	"github.com/goplus/cpkg/internal/toolchain"
	"github.com/goplus/cpkg/pkgs/manifest"
	"github.com/goplus/cpkg/pkgs/mod/module"
)

// TargetDir returns the build output directory of the project of m.
func TargetDir(m *manifest.Manifest) string {
	return filepath.Join(m.Dir, "target")
}

// Clean removes the build output directory of the project of m.
func Clean(m *manifest.Manifest) error {
	return os.RemoveAll(TargetDir(m))
}

// VendorDir returns the directory holding the dependency links of the
// project of m.
func VendorDir(m *manifest.Manifest) string {
	return filepath.Join(TargetDir(m), "vendor")
}

// Vendor links the root directory of every dependency of proj under
// VendorDir, replacing stale links. It returns the links in graph order.
func Vendor(ctx context.Context, proj *Project) ([]string, error) {
	dir := VendorDir(proj.Manifest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var links []string
	for _, m := range proj.Graph.Modules[1:] {
		link := filepath.Join(dir, m.Alias)
		if err := os.Remove(link); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err := os.Symlink(m.Dir, link); err != nil {
			return nil, err
		}
		ctxlog.FromContext(ctx).Debug("vendored", "alias", m.Alias, "dir", m.Dir)
		links = append(links, link)
	}
	return links, nil
}

// Unvendor removes the dependency link of alias, if any.
func Unvendor(m *manifest.Manifest, alias string) error {
	err := os.Remove(filepath.Join(VendorDir(m), alias))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// RunScript runs the [scripts] entry name of m through the shell, with
// args appended as positional parameters.
func RunScript(ctx context.Context, sp proc.Spawner, m *manifest.Manifest, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	script, ok := m.Scripts[name]
	if !ok {
		return 1, fmt.Errorf("%s: no script %q", m.File, name)
	}
	cmd := proc.Command{
		Dir:         m.Dir,
		Stdin:       stdin,
		Stdout:      stdout,
		Stderr:      stderr,
		Interactive: true,
	}
	if runtime.GOOS == "windows" {
		cmd.Name, cmd.Args = "cmd", append([]string{"/c", script}, args...)
	} else {
		cmd.Name, cmd.Args = "sh", append([]string{"-c", script, name}, args...)
	}
	res, err := sp.Spawn(ctx, cmd)
	if err != nil {
		return 1, err
	}
	return res.ExitCode, nil
}

// PlanScratch plans a standalone source file as a program of its own,
// built under target/scratch next to the file.
func PlanScratch(ctx context.Context, file string, opts Options) (*Result, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	family, ok := toolchain.FamilyOf(abs)
	if !ok {
		return nil, fmt.Errorf("%s: not a C or C++ source file", file)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, err
	}

	dir, base := filepath.Split(abs)
	dir = filepath.Clean(dir)
	name := scratchName(base)
	m := &manifest.Manifest{Name: name, Entry: base, Dir: dir}
	root := &modules.Module{Alias: name, Source: module.Source{Path: dir}, Dir: dir, Manifest: m}
	g := &modules.Graph{Root: root, Modules: []*modules.Module{root}}
	groups := []discover.Group{{
		Module:   root,
		Includes: []string{dir},
		Units: []discover.Unit{{
			Path:   abs,
			Rel:    base,
			Kind:   discover.Main,
			Family: family,
			Module: root,
		}},
	}}

	r := &Result{Project: Project{Manifest: m, Graph: g}, Groups: groups, Capability: opts.Capability}
	if r.Capability == nil {
		r.Capability = toolchain.Probe(ctx, toolchain.Options{Spawner: opts.spawner()})
	}
	targetDir := opts.TargetDir
	if targetDir == "" {
		targetDir = filepath.Join(dir, "target", "scratch")
	}
	r.Plan, err = plan.New(g, groups, r.Capability, plan.Run, plan.Options{Bin: opts.Bin, TargetDir: targetDir})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// scratchName derives a module alias from a file name.
func scratchName(base string) string {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := []byte(stem)
	for i, c := range name {
		switch {
		case c == '_', c == '-', c == '.',
			'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		default:
			name[i] = '_'
		}
	}
	if len(name) == 0 || ('0' <= name[0] && name[0] <= '9') || name[0] == '-' || name[0] == '.' {
		name = append([]byte{'_'}, name...)
	}
	return string(name)
}

// Export packs the artifact of a Build result and the public headers of
// the project into the archive dst: bin/<artifact> and include/...
func Export(r *Result, dst string) error {
	if r.Plan.Mode == plan.Test || len(r.Plan.Targets) != 1 {
		return fmt.Errorf("export needs a build plan")
	}
	out := r.Plan.Abs(r.Plan.Targets[0].Output)
	files := []archive.File{{Name: "bin/" + filepath.Base(out), Path: out}}

	inc := filepath.Join(r.Manifest.Dir, discover.IncludeDir)
	err := filepath.WalkDir(inc, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == inc && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !discover.IsHeader(p) {
			return nil
		}
		rel, err := filepath.Rel(inc, p)
		if err != nil {
			return err
		}
		files = append(files, archive.File{Name: path.Join("include", filepath.ToSlash(rel)), Path: p})
		return nil
	})
	if err != nil {
		return err
	}
	return archive.Write(dst, files)
}
