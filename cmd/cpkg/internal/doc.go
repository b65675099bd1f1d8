// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"path/filepath"

	"github.com/goplus/cpkg/internal/core"
	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/discover"
	"github.com/goplus/cpkg/internal/proc"
	"github.com/goplus/cpkg/internal/tools"
	"github.com/spf13/cobra"
)

var docOpen bool

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Generate API documentation into target/doc",
	Long: `Doc documents the sources of the project with doxygen or cldoc,
preferring the [docgen] default of the manifest.`,
	Args: cobra.NoArgs,
	RunE: runDoc,
}

func init() {
	docCmd.Flags().BoolVar(&docOpen, "open", false, "Open the documentation when done")
	rootCmd.AddCommand(docCmd)
}

func runDoc(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, err := loadManifest()
	if err != nil {
		return err
	}
	d, err := tools.NewDocgen(probe(ctx), m, proc.OS{})
	if err != nil {
		return err
	}
	out := filepath.Join(core.TargetDir(m), "doc")
	if err := d.Generate(ctx, filepath.Join(m.Dir, discover.SrcDir), out); err != nil {
		return err
	}
	index := d.Index(out)
	ctxlog.FromContext(ctx).Info("documented", "tool", d.Name(), "index", index)
	if docOpen {
		return tools.Open(ctx, proc.OS{}, index)
	}
	return nil
}
