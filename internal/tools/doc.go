// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/cpkg/internal/discover"
	"github.com/goplus/cpkg/internal/proc"
	"github.com/goplus/cpkg/internal/toolchain"
	"github.com/goplus/cpkg/pkgs/manifest"
)

// Docgen generates API documentation.
type Docgen interface {
	Name() string
	// Generate documents the sources under src into the directory out.
	Generate(ctx context.Context, src, out string) error
	// Index returns the entry page of documentation generated into out.
	Index(out string) string
}

// Documentation generators in order of preference.
var docgens = []string{"doxygen", "cldoc"}

// NewDocgen selects the documentation generator for the project of m.
func NewDocgen(capab *toolchain.Capability, m *manifest.Manifest, sp proc.Spawner) (Docgen, error) {
	name, path, err := pick(capab, "documentation generator", m.Docgen.Default, docgens)
	if err != nil {
		return nil, err
	}
	if name == "cldoc" {
		return &cldoc{path: path, dir: m.Dir, spawner: sp}, nil
	}
	d := &doxygen{path: path, project: m.Name, version: m.Version, dir: m.Dir, spawner: sp}
	if f := m.Docgen.Doxyfile; f != "" {
		if !filepath.IsAbs(f) {
			f = filepath.Join(m.Dir, f)
		}
		d.doxyfile = f
	}
	return d, nil
}

type doxygen struct {
	path     string
	project  string
	version  string
	dir      string
	doxyfile string // User configuration; generated when empty
	spawner  proc.Spawner
}

func (d *doxygen) Name() string { return "doxygen" }

func (d *doxygen) Index(out string) string {
	return filepath.Join(out, "html", "index.html")
}

func (d *doxygen) Generate(ctx context.Context, src, out string) error {
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	doxyfile := d.doxyfile
	if doxyfile == "" {
		doxyfile = filepath.Join(out, "Doxyfile")
		if err := os.WriteFile(doxyfile, []byte(d.config(src, out)), 0o644); err != nil {
			return err
		}
	}
	return run(ctx, d.spawner, "doxygen", proc.Command{
		Name: d.path,
		Args: []string{doxyfile},
		Dir:  d.dir,
	})
}

// config renders a minimal Doxyfile for src.
func (d *doxygen) config(src, out string) string {
	var b strings.Builder
	set := func(key, value string) {
		fmt.Fprintf(&b, "%-22s = %s\n", key, value)
	}
	set("PROJECT_NAME", quote(d.project))
	if d.version != "" {
		set("PROJECT_NUMBER", quote(d.version))
	}
	set("OUTPUT_DIRECTORY", quote(out))
	set("INPUT", quote(src))
	if inc := filepath.Join(d.dir, discover.IncludeDir); inc != src {
		if info, err := os.Stat(inc); err == nil && info.IsDir() {
			fmt.Fprintf(&b, "%-22s += %s\n", "INPUT", quote(inc))
		}
	}
	set("RECURSIVE", "YES")
	set("EXTRACT_ALL", "YES")
	set("GENERATE_LATEX", "NO")
	set("QUIET", "YES")
	return b.String()
}

// quote quotes a Doxyfile value.
func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

type cldoc struct {
	path    string
	dir     string
	spawner proc.Spawner
}

func (c *cldoc) Name() string { return "cldoc" }

func (c *cldoc) Index(out string) string {
	return filepath.Join(out, "index.html")
}

// Generate runs "cldoc generate <cflags> -- --output <out> <files>".
func (c *cldoc) Generate(ctx context.Context, src, out string) error {
	var headers []string
	for _, root := range []string{src, filepath.Join(c.dir, discover.IncludeDir)} {
		filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
			if err == nil && !d.IsDir() && discover.IsHeader(p) {
				headers = append(headers, p)
			}
			return nil
		})
	}
	if len(headers) == 0 {
		return fmt.Errorf("cldoc: no headers under %s", src)
	}
	args := []string{"generate", "-I" + src, "--", "--output", out}
	return run(ctx, c.spawner, "cldoc", proc.Command{
		Name: c.path,
		Args: append(args, headers...),
		Dir:  c.dir,
	})
}
