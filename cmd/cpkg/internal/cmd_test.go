// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goplus/cpkg/internal/build"
	"github.com/goplus/cpkg/internal/emit"
	"github.com/goplus/cpkg/internal/toolchain"
	"github.com/goplus/cpkg/pkgs/manifest"
	"github.com/goplus/cpkg/pkgs/mod/module"
	"github.com/google/go-cmp/cmp"
)

func TestParseRunArgs(t *testing.T) {
	scripts := map[string]string{"hello": "echo hello"}
	tests := []struct {
		name    string
		args    []string
		dash    int
		want    runTarget
		wantErr bool
	}{
		{name: "project", args: nil, dash: -1, want: runTarget{}},
		{name: "project with args", args: []string{"a", "b"}, dash: 0, want: runTarget{args: []string{"a", "b"}}},
		{name: "script", args: []string{"hello", "x"}, dash: 1, want: runTarget{script: "hello", args: []string{"x"}}},
		{name: "file", args: []string{"demo.c"}, dash: -1, want: runTarget{file: "demo.c"}},
		{name: "c++ file", args: []string{"sub/demo.cpp", "-n"}, dash: 1, want: runTarget{file: "sub/demo.cpp", args: []string{"-n"}}},
		{name: "unknown", args: []string{"nope"}, dash: -1, wantErr: true},
		{name: "args without dash", args: []string{"hello", "x"}, dash: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRunArgs(tt.args, tt.dash, scripts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRunArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(runTarget{})); diff != "" {
				t.Errorf("parseRunArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEmitFormat(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, emit.Makefile},
		{[]string{"make"}, emit.Makefile},
		{[]string{"makefile"}, emit.Makefile},
		{[]string{"ninja"}, emit.Ninja},
		{[]string{"compdb"}, emit.CompDB},
		{[]string{"bazel"}, "bazel"},
	}
	for _, tt := range tests {
		if got := emitFormat(tt.args); got != tt.want {
			t.Errorf("emitFormat(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestExitCode(t *testing.T) {
	err := error(exitCode(3))
	var code exitCode
	if !errors.As(err, &code) || code != 3 {
		t.Errorf("errors.As(%v) = %d", err, code)
	}
	if got, want := err.Error(), "exit status 3"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTestReporter(t *testing.T) {
	var buf bytes.Buffer
	rep := &testReporter{w: &buf}
	rep.report(build.TestResult{Name: "tests_a", Passed: true, Elapsed: 12 * time.Millisecond})
	rep.report(build.TestResult{Name: "tests_b", ExitCode: 2, Output: []byte("assertion failed\n")})
	rep.report(build.TestResult{Name: "tests_c", Err: errors.New("compile tests/c.c: exit status 1")})
	rep.summary()

	out := buf.String()
	for _, want := range []string{
		"PASS",
		"tests_a",
		"12ms",
		"FAIL tests_b",
		"assertion failed",
		"compile tests/c.c: exit status 1",
		"1 passed, 2 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if rep.passed != 1 || rep.failed != 2 {
		t.Errorf("passed, failed = %d, %d; want 1, 2", rep.passed, rep.failed)
	}
}

func TestWriteCapability(t *testing.T) {
	c := &toolchain.Capability{
		Compilers: map[toolchain.Family][]toolchain.Compiler{
			toolchain.C: {{Name: "gcc", Path: "/usr/bin/gcc", Kind: toolchain.GCC, Version: "v13.2.0"}},
		},
		Tools: map[string]string{"ninja": "/usr/bin/ninja"},
	}
	var buf bytes.Buffer
	writeCapability(&buf, c)
	out := buf.String()
	for _, want := range []string{"c compilers:", "gcc", "v13.2.0", "c++ compilers:\n  (none)", "/usr/bin/ninja"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

// execute runs the root command with args in a fresh output buffer.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		manifestPath = "."
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAddRemove(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, manifest.TOMLFile)
	if err := os.WriteFile(file, []byte("[package]\nname = \"app\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "add", "stb", "--path", "../stb", "-m", dir)
	if err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	m, err := manifest.Load(file)
	if err != nil {
		t.Fatal(err)
	}
	if dep, ok := m.Dependency("stb"); !ok || dep.Source != (module.Source{Path: "../stb"}) {
		t.Errorf("Dependency(stb) = %+v, %v", dep, ok)
	}

	if out, err := execute(t, "remove", "stb", "-m", dir); err != nil {
		t.Fatalf("remove: %v\n%s", err, out)
	}
	if m, _ = manifest.Load(file); len(m.Dependencies) != 0 {
		t.Errorf("dependencies left: %+v", m.Dependencies)
	}
	if _, err := execute(t, "remove", "stb", "-m", dir); err == nil {
		t.Error("removing an undeclared dependency succeeded")
	}
}

func TestTreeCommand(t *testing.T) {
	base := t.TempDir()
	app, stb := filepath.Join(base, "app"), filepath.Join(base, "stb")
	for _, dir := range []string{app, stb} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	data := "[package]\nname = \"app\"\n\n[dependencies]\nstb = { path = \"../stb\" }\n"
	if err := os.WriteFile(filepath.Join(app, manifest.TOMLFile), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "tree", "-m", app)
	if err != nil {
		t.Fatalf("tree: %v\n%s", err, out)
	}
	if !strings.Contains(out, "app") || !strings.Contains(out, "stb") {
		t.Errorf("tree output:\n%s", out)
	}
}
