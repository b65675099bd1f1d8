// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"fmt"

	"github.com/goplus/cpkg/internal/core"
	"github.com/spf13/cobra"
)

var installUpdate bool

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Fetch the dependencies of the current project",
	Long: `Install resolves the dependency graph, fetching git dependencies into
the source cache, and links every dependency under target/vendor.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the dependency graph",
	Args:  cobra.NoArgs,
	RunE:  runTree,
}

func init() {
	installCmd.Flags().BoolVarP(&installUpdate, "update", "u", false, "Re-sync cached git checkouts with their remotes")
	rootCmd.AddCommand(installCmd, treeCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts := coreOptions()
	opts.Update = installUpdate
	proj, err := core.Resolve(ctx, manifestPath, opts)
	if err != nil {
		return err
	}
	links, err := core.Vendor(ctx, proj)
	if err != nil {
		return err
	}
	for i, link := range links {
		m := proj.Graph.Modules[i+1]
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", link, m.Dir)
	}
	return nil
}

func runTree(cmd *cobra.Command, args []string) error {
	proj, err := core.Resolve(cmd.Context(), manifestPath, coreOptions())
	if err != nil {
		return err
	}
	return proj.Graph.WriteTree(cmd.OutOrStdout())
}
