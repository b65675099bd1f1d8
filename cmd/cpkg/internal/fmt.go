// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"path/filepath"

	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/modules"
	"github.com/goplus/cpkg/internal/proc"
	"github.com/goplus/cpkg/internal/tools"
	"github.com/spf13/cobra"
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [files...]",
	Short: "Format the sources of the current project",
	Long: `Fmt rewrites the sources and headers of the project in place with
clang-format or uncrustify, preferring the [formatter] default of the
manifest. Without arguments every file under src, include and tests is
formatted.`,
	RunE: runFmt,
}

func init() {
	rootCmd.AddCommand(fmtCmd)
}

func runFmt(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, err := loadManifest()
	if err != nil {
		return err
	}
	f, err := tools.NewFormatter(probe(ctx), m, proc.OS{})
	if err != nil {
		return err
	}

	files := args
	if len(files) == 0 {
		if files, err = tools.SourceFiles(&modules.Module{Alias: m.Name, Dir: m.Dir, Manifest: m}); err != nil {
			return err
		}
	}
	for i, file := range files {
		if files[i], err = filepath.Abs(file); err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return nil
	}
	if err := f.Format(ctx, files); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("formatted", "files", len(files), "tool", f.Name())
	return nil
}
