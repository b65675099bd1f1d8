// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"fmt"
	"os"

	"github.com/goplus/cpkg/internal/archive"
	"github.com/goplus/cpkg/internal/build"
	"github.com/goplus/cpkg/internal/core"
	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/plan"
	"github.com/spf13/cobra"
)

var (
	buildBin     string
	buildOutput  string
	buildRebuild bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the current project",
	Long: `Build compiles the current project and its dependencies and links the
entry point into target/<name>.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildBin, "bin", "", "Artifact path (default: target/<name>)")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Also pack the artifact and headers into a .zip or .tar.zst archive")
	buildCmd.Flags().BoolVar(&buildRebuild, "rebuild", false, "Compile every unit even when up to date")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	if buildOutput != "" {
		if _, ok := archive.FormatOf(buildOutput); !ok {
			return fmt.Errorf("%s: unsupported archive format (want .zip or .tar.zst)", buildOutput)
		}
	}
	ctx := cmd.Context()

	opts := coreOptions()
	opts.Bin = buildBin
	opts.Rebuild = buildRebuild
	r, err := core.ResolveAndPlan(ctx, manifestPath, plan.Build, opts)
	if err != nil {
		return err
	}
	if _, err := core.Execute(ctx, r, build.Options{Jobs: jobs, Stdout: os.Stdout, Stderr: os.Stderr}); err != nil {
		return err
	}
	out := r.Plan.Abs(r.Plan.Targets[0].Output)
	ctxlog.FromContext(ctx).Info("built", "artifact", out)

	if buildOutput != "" {
		if err := core.Export(r, buildOutput); err != nil {
			return fmt.Errorf("failed to write %s: %w", buildOutput, err)
		}
		ctxlog.FromContext(ctx).Info("exported", "archive", buildOutput)
	}
	return nil
}
