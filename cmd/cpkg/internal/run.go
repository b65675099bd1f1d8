// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"errors"
	"fmt"
	"os"

	"github.com/goplus/cpkg/internal/build"
	"github.com/goplus/cpkg/internal/core"
	"github.com/goplus/cpkg/internal/plan"
	"github.com/goplus/cpkg/internal/proc"
	"github.com/goplus/cpkg/internal/toolchain"
	"github.com/goplus/cpkg/pkgs/manifest"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [script | file.c] [-- args...]",
	Short: "Build and run the project, a script or a single file",
	Long: `Run builds the current project and runs its artifact. With a name
declared under [scripts] it runs that script through the shell instead, and
with a C or C++ source file it compiles the file on its own into
target/scratch and runs it. Arguments after -- are passed to the program.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runTarget is what "cpkg run" was asked to run.
type runTarget struct {
	script string // A [scripts] entry
	file   string // A standalone source file
	args   []string
}

// parseRunArgs splits the positional arguments of "cpkg run". dash is the
// number of arguments before "--", or -1.
func parseRunArgs(args []string, dash int, scripts map[string]string) (runTarget, error) {
	before, after := args, []string(nil)
	if dash >= 0 {
		before, after = args[:dash], args[dash:]
	}
	t := runTarget{args: after}
	switch len(before) {
	case 0:
		return t, nil
	case 1:
	default:
		return t, fmt.Errorf("unexpected arguments %q (pass program arguments after --)", before[1:])
	}
	name := before[0]
	if _, ok := scripts[name]; ok {
		t.script = name
		return t, nil
	}
	if _, ok := toolchain.FamilyOf(name); ok {
		t.file = name
		return t, nil
	}
	return t, fmt.Errorf("%q is neither a script nor a C or C++ source file", name)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// A standalone file does not need a manifest.
	m, err := loadManifest()
	if err != nil && !errors.Is(err, manifest.ErrNotFound) {
		return err
	}
	var scripts map[string]string
	if m != nil {
		scripts = m.Scripts
	}
	t, err := parseRunArgs(args, cmd.ArgsLenAtDash(), scripts)
	if err != nil {
		return err
	}

	var code int
	switch {
	case t.script != "":
		code, err = core.RunScript(ctx, proc.OS{}, m, t.script, t.args, os.Stdin, os.Stdout, os.Stderr)
	case t.file != "":
		var r *core.Result
		if r, err = core.PlanScratch(ctx, t.file, coreOptions()); err != nil {
			return err
		}
		code, err = core.Execute(ctx, r, runOptions(t.args))
	default:
		if m == nil {
			return fmt.Errorf("%s: %w", manifestPath, manifest.ErrNotFound)
		}
		var r *core.Result
		if r, err = core.ResolveAndPlan(ctx, manifestPath, plan.Run, coreOptions()); err != nil {
			return err
		}
		code, err = core.Execute(ctx, r, runOptions(t.args))
	}
	if err != nil {
		return err
	}
	if code != 0 {
		return exitCode(code)
	}
	return nil
}

func runOptions(args []string) build.Options {
	return build.Options{
		Jobs:   jobs,
		Args:   args,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}
