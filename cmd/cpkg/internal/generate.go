// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"os"
	"path/filepath"

	"github.com/goplus/cpkg/internal/core"
	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/emit"
	"github.com/goplus/cpkg/internal/plan"
	"github.com/spf13/cobra"
)

var (
	generateOutput string
	generateTests  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [make | ninja | compdb]",
	Short: "Write a Makefile, build.ninja or compile_commands.json",
	Long: `Generate plans a full build of the project and writes it as a static
build script: a Makefile (the default), a Ninja file or a compilation
database. The script runs exactly the commands "cpkg build" would.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"make", emit.Makefile, emit.Ninja, emit.CompDB},
	RunE:      runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "Output file, - for stdout (default: conventional name in the project directory)")
	generateCmd.Flags().BoolVar(&generateTests, "tests", false, "Generate the test build instead of the artifact build")
	rootCmd.AddCommand(generateCmd)
}

// emitFormat maps a command line format name to an emit format.
func emitFormat(args []string) string {
	if len(args) == 0 || args[0] == "make" {
		return emit.Makefile
	}
	return args[0]
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format := emitFormat(args)

	mode := plan.Build
	if generateTests {
		mode = plan.Test
	}
	opts := coreOptions()
	opts.Rebuild = true
	r, err := core.ResolveAndPlan(ctx, manifestPath, mode, opts)
	if err != nil {
		return err
	}
	data, err := core.Emit(r.Plan, format)
	if err != nil {
		return err
	}

	out := generateOutput
	switch out {
	case "-":
		_, err := cmd.OutOrStdout().Write(data)
		return err
	case "":
		out = filepath.Join(r.Manifest.Dir, emit.FileName(format))
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("generated", "file", out)
	return nil
}
