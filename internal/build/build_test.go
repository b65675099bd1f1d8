// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/goplus/cpkg/internal/plan"
	"github.com/goplus/cpkg/internal/proc"
	"github.com/goplus/cpkg/internal/proc/proctest"
	"github.com/google/go-cmp/cmp"
)

func planArgv(p *plan.Plan) [][]string {
	var out [][]string
	for _, inv := range p.Invocations() {
		out = append(out, inv.Argv())
	}
	return out
}

func TestExecuteBuild(t *testing.T) {
	proj := newProject(t, "src/main.c", "src/util.c")
	pl := proj.plan(t, plan.Build, nil)
	rec := &proctest.Recorder{CreateOutputs: true}

	code, err := NewBuilder(Options{Spawner: rec, Jobs: 1}).Execute(context.Background(), pl)
	if err != nil || code != 0 {
		t.Fatalf("Execute() = %d, %v; want 0, nil", code, err)
	}
	if diff := cmp.Diff(planArgv(pl), rec.Argv()); diff != "" {
		t.Errorf("spawned commands mismatch (-plan +spawned):\n%s", diff)
	}
	for _, c := range rec.Calls() {
		if c.Dir != proj.dir {
			t.Errorf("%s ran in %q, want %q", c, c.Dir, proj.dir)
		}
	}
	if !exists(filepath.Join(proj.dir, "target", "app")) {
		t.Error("artifact not moved into place")
	}
	if exists(filepath.Join(proj.dir, "target", ".app.tmp")) {
		t.Error("temporary artifact left behind")
	}
}

func TestExecuteParallelKeepsPlanOrder(t *testing.T) {
	proj := newProject(t, "src/a.c", "src/b.c", "src/c.c", "src/d.c", "src/main.c")
	pl := proj.plan(t, plan.Build, nil)
	rec := &proctest.Recorder{CreateOutputs: true}

	if _, err := NewBuilder(Options{Spawner: rec, Jobs: 4}).Execute(context.Background(), pl); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	calls := rec.Argv()
	if len(calls) != 6 {
		t.Fatalf("got %d commands, want 5 compiles and 1 link", len(calls))
	}
	if diff := cmp.Diff(pl.Targets[0].Link.Argv(), calls[5]); diff != "" {
		t.Errorf("link is not last (-want +got):\n%s", diff)
	}
}

func TestExecuteCompileFailure(t *testing.T) {
	proj := newProject(t, "src/main.c", "src/util.c")
	pl := proj.plan(t, plan.Build, nil)
	rec := &proctest.Recorder{Handler: proctest.FailOn(".c", 1, "src/main.c:1:1: error: expected ';'\n")}

	code, err := NewBuilder(Options{Spawner: rec, Jobs: 1}).Execute(context.Background(), pl)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	var cerr *CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("Execute() error = %v, want *CompileError", err)
	}
	if cerr.Unit != "src/main.c" || cerr.ExitCode != 1 || !strings.Contains(cerr.Stderr, "expected ';'") {
		t.Errorf("CompileError = %+v", cerr)
	}
	if n := len(rec.Calls()); n != 1 {
		t.Errorf("got %d commands after the first failure, want 1", n)
	}
}

func TestExecuteLinkFailure(t *testing.T) {
	proj := newProject(t, "src/main.c")
	pl := proj.plan(t, plan.Build, nil)
	temp := pl.Abs(pl.Targets[0].Temp)
	rec := &proctest.Recorder{
		CreateOutputs: true,
		Handler: func(cmd proc.Command) (proc.Result, error) {
			if strings.HasSuffix(proctest.OutputOf(cmd), ".tmp") {
				// A linker that dies after writing part of its output.
				os.WriteFile(temp, []byte("partial"), 0o644)
				return proc.Result{ExitCode: 1, Stderr: []byte("undefined reference to `foo'")}, nil
			}
			return proc.Result{}, nil
		},
	}

	_, err := NewBuilder(Options{Spawner: rec}).Execute(context.Background(), pl)
	var lerr *LinkError
	if !errors.As(err, &lerr) {
		t.Fatalf("Execute() error = %v, want *LinkError", err)
	}
	if lerr.Output != pl.Targets[0].Output {
		t.Errorf("Output = %q, want %q", lerr.Output, pl.Targets[0].Output)
	}
	if exists(temp) {
		t.Error("temporary artifact left behind")
	}
	if exists(pl.Abs(pl.Targets[0].Output)) {
		t.Error("failed link produced an artifact")
	}
}

func TestExecuteCanceled(t *testing.T) {
	proj := newProject(t, "src/main.c")
	pl := proj.plan(t, plan.Build, nil)
	rec := &proctest.Recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(Options{Spawner: rec}).Execute(ctx, pl)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if exists(pl.Abs(pl.Targets[0].Output)) {
		t.Error("canceled build produced an artifact")
	}
}

func TestExecuteRun(t *testing.T) {
	proj := newProject(t, "src/main.c")
	pl := proj.plan(t, plan.Run, nil)
	out := pl.Abs(pl.Targets[0].Output)
	rec := &proctest.Recorder{
		CreateOutputs: true,
		Handler: func(cmd proc.Command) (proc.Result, error) {
			if cmd.Name == out {
				return proc.Result{ExitCode: 3}, nil
			}
			return proc.Result{}, nil
		},
	}

	code, err := NewBuilder(Options{Spawner: rec, Args: []string{"-n", "1"}}).Execute(context.Background(), pl)
	if err != nil || code != 3 {
		t.Fatalf("Execute() = %d, %v; want 3, nil", code, err)
	}
	calls := rec.Calls()
	last := calls[len(calls)-1]
	if last.Name != out || !last.Interactive {
		t.Errorf("last command = %+v, want the artifact run interactively", last)
	}
	if diff := cmp.Diff([]string{"-n", "1"}, last.Args); diff != "" {
		t.Errorf("program args mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteTests(t *testing.T) {
	proj := newProject(t, "src/lib.c", "src/main.c", "tests/a.c", "tests/b.c", "tests/c.c")
	pl := proj.plan(t, plan.Test, nil)
	rec := &proctest.Recorder{
		CreateOutputs: true,
		Handler: func(cmd proc.Command) (proc.Result, error) {
			switch {
			case strings.HasSuffix(cmd.Name, "tests_a"):
				return proc.Result{ExitCode: 2, Stdout: []byte("FAIL: a\n")}, nil
			case slices.ContainsFunc(cmd.Args, func(a string) bool { return strings.HasSuffix(a, "tests/b.c") }):
				return proc.Result{ExitCode: 1, Stderr: []byte("tests/b.c: error")}, nil
			}
			return proc.Result{}, nil
		},
	}

	var results []TestResult
	code, err := NewBuilder(Options{
		Spawner: rec,
		OnTest:  func(r TestResult) { results = append(results, r) },
	}).Execute(context.Background(), pl)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	var failed *TestsFailed
	if !errors.As(err, &failed) {
		t.Fatalf("Execute() error = %v, want *TestsFailed", err)
	}
	if failed.Total != 3 || len(failed.Failures) != 2 {
		t.Errorf("TestsFailed = %v", failed)
	}
	var cerr *CompileError
	if !errors.As(err, &cerr) || cerr.Unit != "tests/b.c" {
		t.Errorf("compile failure of tests/b.c not reachable through errors.As: %v", err)
	}

	type summary struct {
		Name   string
		Passed bool
		Exit   int
		Output string
	}
	var got []summary
	for _, r := range results {
		got = append(got, summary{r.Name, r.Passed, r.ExitCode, string(r.Output)})
	}
	want := []summary{
		{Name: "tests_a", Exit: 2, Output: "FAIL: a\n"},
		{Name: "tests_b"},
		{Name: "tests_c", Passed: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("test results mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteTestsPass(t *testing.T) {
	proj := newProject(t, "src/lib.c", "tests/a.c")
	pl := proj.plan(t, plan.Test, nil)
	rec := &proctest.Recorder{CreateOutputs: true}
	code, err := NewBuilder(Options{Spawner: rec}).Execute(context.Background(), pl)
	if err != nil || code != 0 {
		t.Fatalf("Execute() = %d, %v; want 0, nil", code, err)
	}
	if !exists(filepath.Join(proj.dir, "target", "test", "tests_a")) {
		t.Error("test binary missing")
	}
}

func TestExecuteSkipsUpToDate(t *testing.T) {
	proj := newProject(t, "src/main.c", "src/util.c")
	targetDir := filepath.Join(proj.dir, "target")
	rec := &proctest.Recorder{CreateOutputs: true}
	execute := func() {
		t.Helper()
		stamps := OpenStamps(targetDir)
		pl := proj.plan(t, plan.Build, stamps)
		if _, err := NewBuilder(Options{Spawner: rec, Stamps: stamps}).Execute(context.Background(), pl); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	execute()
	if n := len(rec.Calls()); n != 3 {
		t.Fatalf("first build ran %d commands, want 3", n)
	}

	rec.Reset()
	execute()
	if n := len(rec.Calls()); n != 0 {
		t.Errorf("second build ran %v, want nothing", rec.Argv())
	}

	rec.Reset()
	write(t, filepath.Join(proj.dir, "src", "util.c"), "int util(void) { return 1; }\n")
	execute()
	var units []string
	for _, c := range rec.Calls() {
		if i := len(c.Args) - 4; i >= 0 && c.Args[i] == "-c" {
			units = append(units, filepath.ToSlash(c.Args[i+1]))
		}
	}
	if diff := cmp.Diff([]string{"src/util.c"}, units); diff != "" {
		t.Errorf("recompiled units mismatch (-want +got):\n%s", diff)
	}
	if n := len(rec.Calls()); n != 2 {
		t.Errorf("got %d commands, want one compile and the link", n)
	}
}

func TestExecuteRelinksAfterFailedLink(t *testing.T) {
	proj := newProject(t, "src/main.c")
	targetDir := filepath.Join(proj.dir, "target")
	failLink := false
	rec := &proctest.Recorder{
		CreateOutputs: true,
		Handler: func(cmd proc.Command) (proc.Result, error) {
			if failLink && strings.HasSuffix(proctest.OutputOf(cmd), ".tmp") {
				return proc.Result{ExitCode: 1, Stderr: []byte("ld: interrupted")}, nil
			}
			return proc.Result{}, nil
		},
	}
	execute := func() error {
		t.Helper()
		stamps := OpenStamps(targetDir)
		pl := proj.plan(t, plan.Build, stamps)
		_, err := NewBuilder(Options{Spawner: rec, Stamps: stamps}).Execute(context.Background(), pl)
		return err
	}

	if err := execute(); err != nil {
		t.Fatalf("first build error = %v", err)
	}
	write(t, filepath.Join(proj.dir, "src", "main.c"), "int main(void) { return 1; }\n")
	failLink = true
	var lerr *LinkError
	if err := execute(); !errors.As(err, &lerr) {
		t.Fatalf("second build error = %v, want *LinkError", err)
	}

	failLink = false
	rec.Reset()
	if err := execute(); err != nil {
		t.Fatalf("third build error = %v", err)
	}
	want := [][]string{{"clang", filepath.FromSlash("target/obj/app/src/main.c.o"), "-o", filepath.FromSlash("target/.app.tmp")}}
	if diff := cmp.Diff(want, rec.Argv()); diff != "" {
		t.Errorf("rebuild after a failed link mismatch (-want +got):\n%s", diff)
	}

	rec.Reset()
	if err := execute(); err != nil {
		t.Fatalf("fourth build error = %v", err)
	}
	if n := len(rec.Calls()); n != 0 {
		t.Errorf("build after a good link ran %v, want nothing", rec.Argv())
	}
}

func TestExecuteRecompilesAfterHeaderEdit(t *testing.T) {
	proj := newProject(t, "src/main.c", "src/util.h")
	targetDir := filepath.Join(proj.dir, "target")
	rec := &proctest.Recorder{CreateOutputs: true}
	execute := func() {
		t.Helper()
		stamps := OpenStamps(targetDir)
		pl := proj.plan(t, plan.Build, stamps)
		if _, err := NewBuilder(Options{Spawner: rec, Stamps: stamps}).Execute(context.Background(), pl); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	execute()
	rec.Reset()
	execute()
	if n := len(rec.Calls()); n != 0 {
		t.Fatalf("unchanged build ran %v, want nothing", rec.Argv())
	}

	header := filepath.Join(proj.dir, "src", "util.h")
	write(t, header, "int util(void);\n")
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(header, later, later); err != nil {
		t.Fatal(err)
	}
	rec.Reset()
	execute()
	var units []string
	for _, c := range rec.Calls() {
		if i := len(c.Args) - 4; i >= 0 && c.Args[i] == "-c" {
			units = append(units, filepath.ToSlash(c.Args[i+1]))
		}
	}
	if diff := cmp.Diff([]string{"src/main.c"}, units); diff != "" {
		t.Errorf("recompiled units mismatch (-want +got):\n%s", diff)
	}
	if n := len(rec.Calls()); n != 2 {
		t.Errorf("got %d commands, want one compile and the link", n)
	}
}
