// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build executes build plans: parallel compiles, atomic links and
// test or program runs.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/plan"
	"github.com/goplus/cpkg/internal/proc"
	"golang.org/x/sync/errgroup"
)

// TestResult describes one test run.
type TestResult struct {
	Name     string
	Unit     string // Slash path of the test unit
	Passed   bool
	ExitCode int
	Elapsed  time.Duration
	Output   []byte // Combined output when not streamed
	Err      error  // Build error of the test, if any
}

// Options configures a Builder.
type Options struct {
	Spawner proc.Spawner // Defaults to proc.OS
	Jobs    int          // Parallel compiles; defaults to runtime.NumCPU()
	Stamps  *Stamps      // Updated after each successful compile, if set

	// Args are passed to the program of a Run plan.
	Args []string
	// RunDir is the working directory of programs and tests. Defaults to
	// the plan directory.
	RunDir string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer // Also receives compiler warnings

	// StreamTests sends test output to Stdout and Stderr as it happens
	// instead of capturing it into TestResult.Output.
	StreamTests bool
	// OnTest is called after every test of a Test plan.
	OnTest func(TestResult)
}

// Builder executes plans.
type Builder struct {
	opts Options
}

// NewBuilder returns a Builder for opts.
func NewBuilder(opts Options) *Builder {
	if opts.Spawner == nil {
		opts.Spawner = proc.OS{}
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	return &Builder{opts: opts}
}

// Execute runs p and returns the exit code of the command that was asked
// for: 0 for a successful build, the program's exit code in Run mode and 1
// when a test failed. The error is non-nil whenever the exit code is not
// produced by the program itself.
func (b *Builder) Execute(ctx context.Context, p *plan.Plan) (int, error) {
	if b.opts.Stamps != nil {
		defer func() {
			if err := b.opts.Stamps.Save(); err != nil {
				ctxlog.FromContext(ctx).Warn("cannot save stamp cache", "err", err)
			}
		}()
	}

	ran, err := b.compileAll(ctx, p, p.Compiles)
	if err != nil {
		return 1, err
	}
	if p.Mode == plan.Test {
		return b.runTests(ctx, p)
	}
	if len(p.Targets) != 1 {
		return 1, fmt.Errorf("%s plan has %d targets, want 1", p.Mode, len(p.Targets))
	}

	t := p.Targets[0]
	n, err := b.compileAll(ctx, p, t.Compiles)
	if err != nil {
		return 1, err
	}
	if ran+n > 0 || !b.linked(p, t) {
		if err := b.link(ctx, p, t); err != nil {
			return 1, err
		}
	} else {
		ctxlog.FromContext(ctx).Debug("up to date", "output", t.Output)
	}
	if p.Mode == plan.Run {
		return b.run(ctx, p, t)
	}
	return 0, nil
}

// compileAll runs the compiles of invs that are not up to date, at most
// Jobs at a time. The first failure cancels the others; the error reported
// is the one of the earliest failing invocation in plan order.
func (b *Builder) compileAll(ctx context.Context, p *plan.Plan, invs []*plan.Invocation) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Jobs)
	errs := make([]error, len(invs))
	ran := 0
	for i, inv := range invs {
		if inv.UpToDate {
			continue
		}
		ran++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			errs[i] = b.compile(gctx, p, inv)
			return errs[i]
		})
	}
	if g.Wait() == nil {
		return ran, nil
	}
	if err := ctx.Err(); err != nil {
		return ran, err
	}
	var first error
	for _, err := range errs {
		var cerr *CompileError
		if errors.As(err, &cerr) {
			return ran, err
		}
		if first == nil && err != nil && !errors.Is(err, context.Canceled) {
			first = err
		}
	}
	if first == nil {
		first = context.Canceled
	}
	return ran, first
}

func (b *Builder) compile(ctx context.Context, p *plan.Plan, inv *plan.Invocation) error {
	obj := p.Abs(inv.Output)
	if err := os.MkdirAll(filepath.Dir(obj), 0o755); err != nil {
		return err
	}
	res, err := b.opts.Spawner.Spawn(ctx, proc.Command{
		Name: inv.Command,
		Args: inv.Args,
		Dir:  inv.Dir,
	})
	if err != nil {
		return fmt.Errorf("compile %s: %w", inv.Unit.Rel, err)
	}
	if res.ExitCode != 0 {
		return &CompileError{Unit: inv.Unit.Rel, ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}
	b.opts.Stderr.Write(res.Stderr)
	ctxlog.FromContext(ctx).Debug("compiled", "unit", inv.Unit.Rel)

	if b.opts.Stamps != nil {
		if err := b.opts.Stamps.Record(inv.Unit.Path, obj, inv.Argv(), inv.HeaderDirs); err != nil {
			ctxlog.FromContext(ctx).Warn("cannot stamp object", "object", inv.Output, "err", err)
		}
	}
	return nil
}

// linked reports whether the artifact of t is current: it exists and, when
// stamps are kept, was last linked with the same arguments after every
// object was written.
func (b *Builder) linked(p *plan.Plan, t *plan.Target) bool {
	if b.opts.Stamps == nil {
		return exists(p.Abs(t.Output))
	}
	objects := make([]string, len(t.Objects))
	for i, obj := range t.Objects {
		objects[i] = p.Abs(obj)
	}
	return b.opts.Stamps.Linked(p.Abs(t.Output), t.Link.Argv(), objects)
}

// link runs the link step of t and moves its output into place. The
// temporary output is removed on any failure. The link stamp of t is
// dropped first so an interrupted link is redone next time.
func (b *Builder) link(ctx context.Context, p *plan.Plan, t *plan.Target) (err error) {
	temp := p.Abs(t.Temp)
	if err := os.MkdirAll(filepath.Dir(temp), 0o755); err != nil {
		return err
	}
	if b.opts.Stamps != nil {
		b.opts.Stamps.ForgetLink(p.Abs(t.Output))
	}
	defer func() {
		if err != nil {
			os.Remove(temp)
		}
	}()

	res, err := b.opts.Spawner.Spawn(ctx, proc.Command{
		Name: t.Link.Command,
		Args: t.Link.Args,
		Dir:  t.Link.Dir,
	})
	if err != nil {
		return fmt.Errorf("link %s: %w", t.Output, err)
	}
	if res.ExitCode != 0 {
		return &LinkError{Output: t.Output, ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}
	b.opts.Stderr.Write(res.Stderr)
	if err := os.Rename(temp, p.Abs(t.Output)); err != nil {
		return err
	}
	if b.opts.Stamps != nil {
		b.opts.Stamps.RecordLink(p.Abs(t.Output), t.Link.Argv())
	}
	ctxlog.FromContext(ctx).Debug("linked", "output", t.Output)
	return nil
}

// run executes the artifact of a Run plan with the caller's stdio.
func (b *Builder) run(ctx context.Context, p *plan.Plan, t *plan.Target) (int, error) {
	res, err := b.opts.Spawner.Spawn(ctx, proc.Command{
		Name:        p.Abs(t.Output),
		Args:        b.opts.Args,
		Dir:         b.runDir(p),
		Stdin:       b.opts.Stdin,
		Stdout:      b.opts.Stdout,
		Stderr:      b.opts.Stderr,
		Interactive: true,
	})
	if err != nil {
		return 1, err
	}
	return res.ExitCode, nil
}

// runTests builds and runs each test target in turn. A failing test does
// not stop the others.
func (b *Builder) runTests(ctx context.Context, p *plan.Plan) (int, error) {
	failed := &TestsFailed{Total: len(p.Targets)}
	for _, t := range p.Targets {
		if err := ctx.Err(); err != nil {
			return 1, err
		}
		r := b.runTest(ctx, p, t)
		if ctx.Err() != nil {
			return 1, ctx.Err()
		}
		if b.opts.OnTest != nil {
			b.opts.OnTest(r)
		}
		if !r.Passed {
			failed.Failures.Add(&TestFailure{Name: r.Name, ExitCode: r.ExitCode, Err: r.Err})
		}
	}
	if len(failed.Failures) > 0 {
		return 1, failed
	}
	return 0, nil
}

func (b *Builder) runTest(ctx context.Context, p *plan.Plan, t *plan.Target) TestResult {
	r := TestResult{Name: t.Name}
	if t.Test != nil {
		r.Unit = t.Test.Rel
	}
	if _, r.Err = b.compileAll(ctx, p, t.Compiles); r.Err != nil {
		return r
	}
	if r.Err = b.link(ctx, p, t); r.Err != nil {
		return r
	}

	cmd := proc.Command{Name: p.Abs(t.Output), Dir: b.runDir(p)}
	if b.opts.StreamTests {
		cmd.Stdout, cmd.Stderr = b.opts.Stdout, b.opts.Stderr
	}
	start := time.Now()
	res, err := b.opts.Spawner.Spawn(ctx, cmd)
	r.Elapsed = time.Since(start)
	if err != nil {
		r.Err = err
		return r
	}
	r.ExitCode = res.ExitCode
	r.Passed = res.ExitCode == 0
	r.Output = append(res.Stdout, res.Stderr...)
	ctxlog.FromContext(ctx).Debug("test finished", "name", t.Name, "exit", res.ExitCode, "elapsed", r.Elapsed)
	return r
}

func (b *Builder) runDir(p *plan.Plan) string {
	if b.opts.RunDir != "" {
		return b.opts.RunDir
	}
	return p.Dir
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
