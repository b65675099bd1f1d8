// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"errors"
	"fmt"

	"github.com/goplus/cpkg/internal/core"
	"github.com/goplus/cpkg/pkgs/manifest"
	"github.com/goplus/cpkg/pkgs/mod/module"
	"github.com/spf13/cobra"
)

var (
	addPath   string
	addGit    string
	addRef    string
	addSubdir string
)

var addCmd = &cobra.Command{
	Use:   "add <alias> (--path dir | --git url [--ref ref] [--subdir dir])",
	Short: "Add a dependency to the manifest",
	Long: `Add declares a dependency under alias in the manifest, replacing an
existing declaration of the same alias in place. Run "cpkg install" to fetch
it.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:   "remove <alias>",
	Short: "Remove a dependency from the manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	addCmd.Flags().StringVar(&addPath, "path", "", "Local directory of the dependency, relative to the project")
	addCmd.Flags().StringVar(&addGit, "git", "", "Git repository URL of the dependency")
	addCmd.Flags().StringVar(&addRef, "ref", "", "Branch, tag or commit to check out")
	addCmd.Flags().StringVar(&addSubdir, "subdir", "", "Directory of the dependency inside the repository")
	addCmd.MarkFlagsMutuallyExclusive("path", "git")
	addCmd.MarkFlagsOneRequired("path", "git")
	rootCmd.AddCommand(addCmd, removeCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	alias := args[0]
	src := module.Source{Path: addPath, Git: addGit, Ref: addRef, Subdir: addSubdir}
	if src.Path != "" && (src.Ref != "" || src.Subdir != "") {
		return errors.New("--ref and --subdir only apply to --git dependencies")
	}

	m, err := loadManifest()
	if err != nil {
		return err
	}
	if alias == m.Name {
		return fmt.Errorf("%q is the name of the project", alias)
	}
	_, replaced := m.Dependency(alias)
	m.AddDependency(manifest.Dependency{Alias: alias, Source: src})
	if err := manifest.Save(m); err != nil {
		return err
	}
	verb := "Added"
	if replaced {
		verb = "Updated"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s dependency %s (%s)\n", verb, alias, src)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	alias := args[0]
	m, err := loadManifest()
	if err != nil {
		return err
	}
	if !m.RemoveDependency(alias) {
		return fmt.Errorf("%s: no dependency %q", m.File, alias)
	}
	if err := manifest.Save(m); err != nil {
		return err
	}
	if err := core.Unvendor(m, alias); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed dependency %s\n", alias)
	return nil
}
