// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/goplus/cpkg/internal/toolchain"
	"github.com/spf13/cobra"
)

var toolchainCmd = &cobra.Command{
	Use:   "toolchain",
	Short: "Print the compilers and tools found on the host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		writeCapability(cmd.OutOrStdout(), probe(cmd.Context()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolchainCmd)
}

var headingStyle = lipgloss.NewStyle().Bold(true)

// writeCapability prints c, families and tools in a fixed order.
func writeCapability(w io.Writer, c *toolchain.Capability) {
	for _, family := range []toolchain.Family{toolchain.C, toolchain.CXX} {
		fmt.Fprintln(w, headingStyle.Render(string(family)+" compilers:"))
		list := c.Compilers[family]
		if len(list) == 0 {
			fmt.Fprintln(w, "  (none)")
		}
		for _, comp := range list {
			version := comp.Version
			if version == "" {
				version = "unknown version"
			}
			line := fmt.Sprintf("  %-8s %-6s %-16s %s", comp.Name, comp.Kind, version, comp.Path)
			if comp.FromEnv {
				line += dimStyle.Render(" (from environment)")
			}
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintln(w, headingStyle.Render("tools:"))
	for _, name := range toolchain.Tools {
		path, ok := c.Tool(name)
		if !ok {
			path = dimStyle.Render("not found")
		}
		fmt.Fprintf(w, "  %-13s %s\n", name, path)
	}
}
