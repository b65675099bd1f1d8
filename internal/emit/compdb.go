// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package emit

import (
	"encoding/json"

	"github.com/goplus/cpkg/internal/plan"
)

// compileCommand is one entry of a JSON compilation database.
type compileCommand struct {
	Directory string   `json:"directory"`
	Arguments []string `json:"arguments"`
	File      string   `json:"file"`
	Output    string   `json:"output"`
}

// compdb renders the compile invocations of p as compile_commands.json.
func compdb(p *plan.Plan) ([]byte, error) {
	cmds := []compileCommand{}
	for _, inv := range p.Invocations() {
		if inv.Unit == nil {
			continue
		}
		cmds = append(cmds, compileCommand{
			Directory: inv.Dir,
			Arguments: inv.Argv(),
			File:      inv.Source,
			Output:    inv.Output,
		})
	}
	data, err := json.MarshalIndent(cmds, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
