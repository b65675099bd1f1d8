// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tools

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/proc"
	"github.com/goplus/cpkg/internal/toolchain"
	"github.com/goplus/cpkg/pkgs/manifest"
)

// Formatter rewrites source files in place.
type Formatter interface {
	Name() string
	Format(ctx context.Context, paths []string) error
}

// Formatters in order of preference.
var formatters = []string{"clang-format", "uncrustify"}

// maxArgs bounds the number of files passed to one formatter process.
const maxArgs = 64

// NewFormatter selects the formatter for the project of m: the manifest's
// default when installed, else the first installed of clang-format and
// uncrustify.
func NewFormatter(capab *toolchain.Capability, m *manifest.Manifest, sp proc.Spawner) (Formatter, error) {
	name, path, err := pick(capab, "formatter", m.Formatter.Default, formatters)
	if err != nil {
		return nil, err
	}
	f := &formatter{name: name, path: path, dir: m.Dir, spawner: sp}
	switch name {
	case "clang-format":
		f.args = []string{"-i"}
		if style := m.Formatter.ClangFormatStyle; style != "" {
			f.args = append(f.args, "--style="+style)
		}
	case "uncrustify":
		f.args = []string{"--replace", "--no-backup"}
		if cfg := m.Formatter.UncrustifyConfig; cfg != "" {
			if !filepath.IsAbs(cfg) {
				cfg = filepath.Join(m.Dir, cfg)
			}
			f.args = append(f.args, "-c", cfg)
		}
	}
	return f, nil
}

type formatter struct {
	name    string
	path    string
	dir     string
	args    []string
	spawner proc.Spawner
}

func (f *formatter) Name() string { return f.name }

func (f *formatter) Format(ctx context.Context, paths []string) error {
	for chunk := range slices.Chunk(paths, maxArgs) {
		cmd := proc.Command{
			Name: f.path,
			Args: append(slices.Clone(f.args), chunk...),
			Dir:  f.dir,
		}
		if err := run(ctx, f.spawner, f.name, cmd); err != nil {
			return err
		}
	}
	ctxlog.FromContext(ctx).Debug("formatted", "tool", f.name, "files", len(paths))
	return nil
}
