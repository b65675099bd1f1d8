// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package modules

import (
	"fmt"
	"io"
)

// WriteTree prints the graph as an indented tree. A module reached a second
// time is printed once more, marked with "(*)", without its dependencies.
func (g *Graph) WriteTree(w io.Writer) error {
	seen := make(map[*Module]bool)
	var walk func(m *Module, prefix string, last, top bool) error
	walk = func(m *Module, prefix string, last, top bool) error {
		branch, next := "├── ", "│   "
		if last {
			branch, next = "└── ", "    "
		}
		if top {
			branch, next = "", ""
		}
		mark := ""
		if seen[m] {
			mark = " (*)"
		}
		if _, err := fmt.Fprintf(w, "%s%s%s %s%s\n", prefix, branch, m.Alias, m.Source, mark); err != nil {
			return err
		}
		if seen[m] {
			return nil
		}
		seen[m] = true
		for i, d := range m.Deps {
			if err := walk(d, prefix+next, i == len(m.Deps)-1, false); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(g.Root, "", true, true)
}
