// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/goplus/cpkg/internal/build"
	"github.com/goplus/cpkg/internal/core"
	"github.com/goplus/cpkg/internal/plan"
	"github.com/spf13/cobra"
)

var testPrint bool

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Build and run the tests of the current project",
	Long: `Test builds every test unit (tests/*.c and src/**/*.test.c) into its own
binary, runs each one and reports the results. A test passes when it exits
with status 0.`,
	Args: cobra.NoArgs,
	RunE: runTest,
}

func init() {
	testCmd.Flags().BoolVarP(&testPrint, "print", "p", false, "Stream the output of every test")
	rootCmd.AddCommand(testCmd)
}

var (
	passStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

// testReporter prints one line per test and a summary.
type testReporter struct {
	w       io.Writer
	passed  int
	failed  int
	elapsed time.Duration
}

func (r *testReporter) report(res build.TestResult) {
	r.elapsed += res.Elapsed
	status := passStyle.Render("PASS")
	if res.Passed {
		r.passed++
	} else {
		r.failed++
		status = failStyle.Render("FAIL")
	}
	fmt.Fprintf(r.w, "%s %s %s\n", status, res.Name, dimStyle.Render(res.Elapsed.Round(time.Millisecond).String()))
	if !res.Passed {
		if res.Err != nil {
			fmt.Fprintf(r.w, "    %v\n", res.Err)
		}
		if len(res.Output) > 0 {
			r.w.Write(res.Output)
		}
	}
}

func (r *testReporter) summary() {
	if r.failed == 0 {
		fmt.Fprintf(r.w, "%s %d passed in %s\n", passStyle.Render("ok"), r.passed, r.elapsed.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(r.w, "%s %d passed, %d failed\n", failStyle.Render("FAILED"), r.passed, r.failed)
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := core.ResolveAndPlan(ctx, manifestPath, plan.Test, coreOptions())
	if err != nil {
		return err
	}
	if len(r.Plan.Targets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tests")
		return nil
	}

	rep := &testReporter{w: cmd.OutOrStdout()}
	code, err := core.Execute(ctx, r, build.Options{
		Jobs:        jobs,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		StreamTests: testPrint,
		OnTest:      rep.report,
	})
	var failed *build.TestsFailed
	if err != nil && !errors.As(err, &failed) {
		return err
	}
	rep.summary()
	if code != 0 {
		return exitCode(code)
	}
	return nil
}
