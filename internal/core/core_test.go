// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/goplus/cpkg/internal/build"
	"github.com/goplus/cpkg/internal/modules"
	"github.com/goplus/cpkg/internal/plan"
	"github.com/goplus/cpkg/internal/proc"
	"github.com/goplus/cpkg/internal/proc/proctest"
	"github.com/google/go-cmp/cmp"
)

const appManifest = `[package]
name = "app"

[dependencies]
stb = { path = "../stb" }
`

func TestBuildWithLocalDependency(t *testing.T) {
	base := t.TempDir()
	appDir, stbDir := filepath.Join(base, "app"), filepath.Join(base, "stb")
	writeTree(t, appDir, map[string]string{
		"cpkg.toml":  appManifest,
		"src/main.c": "int main(void) { return 0; }\n",
	})
	writeTree(t, stbDir, map[string]string{
		"stb.c": "int stb;\n",
		"stb.h": "extern int stb;\n",
	})

	r, err := ResolveAndPlan(context.Background(), appDir, plan.Build, Options{Capability: clangHost()})
	if err != nil {
		t.Fatalf("ResolveAndPlan() error = %v", err)
	}
	if got := r.Plan.Targets[0].Output; got != filepath.Join("target", "app") {
		t.Errorf("artifact = %q, want target/app", got)
	}

	rec := &proctest.Recorder{CreateOutputs: true}
	code, err := Execute(context.Background(), r, build.Options{Spawner: rec, Jobs: 1})
	if err != nil || code != 0 {
		t.Fatalf("Execute() = %d, %v", code, err)
	}
	want := [][]string{
		{"clang", "-Isrc", "-I" + stbDir, "-c", filepath.Join("src", "main.c"), "-o", filepath.Join("target", "obj", "app", "src", "main.c.o")},
		{"clang", "-Isrc", "-I" + stbDir, "-c", filepath.Join(stbDir, "stb.c"), "-o", filepath.Join("target", "obj", "stb", "stb.c.o")},
		{"clang", filepath.Join("target", "obj", "app", "src", "main.c.o"), filepath.Join("target", "obj", "stb", "stb.c.o"), "-o", filepath.Join("target", ".app.tmp")},
	}
	if diff := cmp.Diff(want, rec.Argv()); diff != "" {
		t.Errorf("spawned commands mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(appDir, "target", "app")); err != nil {
		t.Errorf("artifact missing: %v", err)
	}

	// A second plan finds everything up to date.
	r, err = ResolveAndPlan(context.Background(), appDir, plan.Build, Options{Capability: clangHost()})
	if err != nil {
		t.Fatal(err)
	}
	for _, inv := range r.Plan.Compiles {
		if !inv.UpToDate {
			t.Errorf("%s not up to date after a build", inv.Unit.Rel)
		}
	}
}

func TestMissingDependencySpawnsNothing(t *testing.T) {
	appDir := filepath.Join(t.TempDir(), "app")
	writeTree(t, appDir, map[string]string{
		"cpkg.toml":  appManifest,
		"src/main.c": "int main(void) { return 0; }\n",
	})
	rec := &proctest.Recorder{}
	_, err := ResolveAndPlan(context.Background(), appDir, plan.Build, Options{Spawner: rec})
	var nf *modules.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("ResolveAndPlan() error = %v, want *modules.NotFoundError", err)
	}
	if nf.Path != "../stb" {
		t.Errorf("Path = %q, want the declared ../stb", nf.Path)
	}
	if n := len(rec.Calls()); n != 0 {
		t.Errorf("spawned %d processes before failing", n)
	}
}

func TestGitDependency(t *testing.T) {
	base := t.TempDir()
	appDir, checkout := filepath.Join(base, "app"), filepath.Join(base, "cache", "cjson")
	writeTree(t, appDir, map[string]string{
		"cpkg.toml": `[package]
name = "app"

[dependencies]
cjson = { git = "https://github.com/DaveGamble/cJSON.git", ref = "v1.7.18" }
`,
		"src/main.c": "int main(void) { return 0; }\n",
	})
	writeTree(t, checkout, map[string]string{"cJSON.c": "", "cJSON.h": ""})
	fetcher := &mockFetcher{dirs: map[string]string{"https://github.com/DaveGamble/cJSON": checkout}}

	r, err := ResolveAndPlan(context.Background(), appDir, plan.Build, Options{Fetcher: fetcher, Capability: clangHost()})
	if err != nil {
		t.Fatalf("ResolveAndPlan() error = %v", err)
	}
	if m := r.Graph.Lookup("cjson"); m == nil || m.Dir != checkout {
		t.Errorf("cjson module = %+v", m)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetched %d times, want 1", fetcher.calls)
	}
	if got := r.Plan.Compiles[1].Unit.Rel; got != "cJSON.c" {
		t.Errorf("second compile = %q, want cJSON.c", got)
	}
}

func TestTestPlan(t *testing.T) {
	appDir := t.TempDir()
	writeTree(t, appDir, map[string]string{
		"cpkg.toml":   "[package]\nname = \"app\"\n",
		"src/lib.c":   "",
		"src/main.c":  "",
		"tests/one.c": "",
		"tests/two.c": "",
	})
	r, err := ResolveAndPlan(context.Background(), filepath.Join(appDir, "cpkg.toml"), plan.Test, Options{Capability: clangHost()})
	if err != nil {
		t.Fatal(err)
	}
	if r.Stamps != nil {
		t.Error("test plans do not use the stamp cache")
	}
	var names []string
	for _, tg := range r.Plan.Targets {
		names = append(names, tg.Name)
	}
	if diff := cmp.Diff([]string{"tests_one", "tests_two"}, names); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanScratch(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"hello world.c": "int main(void) { return 7; }\n"})
	r, err := PlanScratch(context.Background(), filepath.Join(dir, "hello world.c"), Options{Capability: clangHost()})
	if err != nil {
		t.Fatalf("PlanScratch() error = %v", err)
	}
	out := r.Plan.Abs(r.Plan.Targets[0].Output)
	if want := filepath.Join(dir, "target", "scratch", "hello_world"); out != want {
		t.Errorf("artifact = %q, want %q", out, want)
	}

	rec := &proctest.Recorder{
		CreateOutputs: true,
		Handler: func(cmd proc.Command) (proc.Result, error) {
			if cmd.Name == out {
				return proc.Result{ExitCode: 7}, nil
			}
			return proc.Result{}, nil
		},
	}
	code, err := Execute(context.Background(), r, build.Options{Spawner: rec})
	if err != nil || code != 7 {
		t.Errorf("Execute() = %d, %v; want 7, nil", code, err)
	}
	if n := len(rec.Calls()); n != 3 {
		t.Errorf("got %d commands, want compile, link and run", n)
	}
}

func TestPlanScratchRejectsNonSource(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"notes.txt": ""})
	if _, err := PlanScratch(context.Background(), filepath.Join(dir, "notes.txt"), Options{Capability: clangHost()}); err == nil {
		t.Error("PlanScratch() accepted a text file")
	}
}

func TestScratchName(t *testing.T) {
	tests := map[string]string{
		"hello.c":       "hello",
		"hello world.c": "hello_world",
		"2fast.cpp":     "_2fast",
		"a+b.c":         "a_b",
	}
	for in, want := range tests {
		if got := scratchName(in); got != want {
			t.Errorf("scratchName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVendor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	base := t.TempDir()
	appDir, stbDir := filepath.Join(base, "app"), filepath.Join(base, "stb")
	writeTree(t, appDir, map[string]string{"cpkg.toml": appManifest})
	writeTree(t, stbDir, map[string]string{"stb.h": ""})

	proj, err := Resolve(context.Background(), appDir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		links, err := Vendor(context.Background(), proj)
		if err != nil {
			t.Fatalf("Vendor() error = %v", err)
		}
		if len(links) != 1 {
			t.Fatalf("got %d links, want 1", len(links))
		}
		if target, err := os.Readlink(links[0]); err != nil || target != stbDir {
			t.Errorf("link points at %q (%v), want %q", target, err, stbDir)
		}
	}

	if err := Unvendor(proj.Manifest, "stb"); err != nil {
		t.Fatalf("Unvendor() error = %v", err)
	}
	if _, err := os.Lstat(filepath.Join(VendorDir(proj.Manifest), "stb")); !os.IsNotExist(err) {
		t.Errorf("link still present (err = %v)", err)
	}
	if err := Unvendor(proj.Manifest, "stb"); err != nil {
		t.Errorf("second Unvendor() error = %v", err)
	}
}

func TestRunScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"cpkg.toml": "[package]\nname = \"app\"\n\n[scripts]\nhello = \"echo hello\"\n"})
	m, err := LoadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec := &proctest.Recorder{Handler: func(proc.Command) (proc.Result, error) { return proc.Result{ExitCode: 2}, nil }}
	code, err := RunScript(context.Background(), rec, m, "hello", []string{"x"}, nil, nil, nil)
	if err != nil || code != 2 {
		t.Fatalf("RunScript() = %d, %v", code, err)
	}
	if diff := cmp.Diff([][]string{{"sh", "-c", "echo hello", "hello", "x"}}, rec.Argv()); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
	if _, err := RunScript(context.Background(), rec, m, "nope", nil, nil, nil, nil); err == nil {
		t.Error("RunScript() ran an undeclared script")
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"cpkg.toml":       "[package]\nname = \"app\"\n",
		"src/main.c":      "",
		"include/app.h":   "",
		"include/sub/x.h": "",
		"include/README":  "",
	})
	r, err := ResolveAndPlan(context.Background(), dir, plan.Build, Options{Capability: clangHost()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Execute(context.Background(), r, build.Options{Spawner: &proctest.Recorder{CreateOutputs: true}}); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "dist", "app.tar.zst")
	if err := Export(r, dst); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("archive missing: %v", err)
	}
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"cpkg.toml": "[package]\nname = \"app\"\n", "target/app": ""})
	m, err := LoadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := Clean(m); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(TargetDir(m)); !os.IsNotExist(err) {
		t.Errorf("target still present (err = %v)", err)
	}
}
