// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goplus/cpkg/internal/discover"
	"github.com/goplus/cpkg/internal/modules"
	"github.com/goplus/cpkg/internal/plan"
	"github.com/goplus/cpkg/internal/toolchain"
	"github.com/goplus/cpkg/pkgs/manifest"
)

// project is an on-disk project named "app" with the given source files.
type project struct {
	dir   string
	graph *modules.Graph
}

func newProject(t *testing.T, files ...string) *project {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "app")
	write(t, filepath.Join(dir, manifest.TOMLFile), "[package]\nname = \"app\"\n")
	for _, f := range files {
		write(t, filepath.Join(dir, filepath.FromSlash(f)), "int x;\n")
	}
	m, err := manifest.LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	g, err := modules.Load(context.Background(), m, modules.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return &project{dir: dir, graph: g}
}

// plan plans the project for mode against a host that has clang only.
func (p *project) plan(t *testing.T, mode plan.Mode, stamps plan.StampChecker) *plan.Plan {
	t.Helper()
	groups, err := discover.All(context.Background(), p.graph, 1)
	if err != nil {
		t.Fatal(err)
	}
	host := &toolchain.Capability{Compilers: map[toolchain.Family][]toolchain.Compiler{
		toolchain.C: {{Name: "clang", Kind: toolchain.Clang}},
	}}
	pl, err := plan.New(p.graph, groups, host, mode, plan.Options{Stamps: stamps, GOOS: "linux"})
	if err != nil {
		t.Fatal(err)
	}
	return pl
}

func write(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}
