// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package emit

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goplus/cpkg/internal/plan"
	"github.com/kballard/go-shellquote"
)

const ninjaRules = `
ninja_required_version = 1.3

rule cc
  command = $cmd
  description = CC $in

rule link
  command = $cmd && mv -f $tmp $out
  description = LINK $out
`

// ninja renders p as build.ninja. Ninja creates output directories itself.
func ninja(p *plan.Plan) []byte {
	var b bytes.Buffer
	b.WriteString(header)
	b.WriteString(ninjaRules)
	for _, inv := range p.Compiles {
		ninjaCompile(&b, inv)
	}
	for _, t := range p.Targets {
		for _, inv := range t.Compiles {
			ninjaCompile(&b, inv)
		}
		fmt.Fprintf(&b, "\nbuild %s: link%s\n", ninjaPath(t.Output), ninjaPaths(t.Objects))
		fmt.Fprintf(&b, "  cmd = %s\n", ninjaValue(shellquote.Join(t.Link.Argv()...)))
		fmt.Fprintf(&b, "  tmp = %s\n", ninjaValue(shellquote.Join(t.Temp)))
	}
	fmt.Fprintf(&b, "\ndefault%s\n", ninjaPaths(outputs(p)))
	return b.Bytes()
}

func ninjaCompile(b *bytes.Buffer, inv *plan.Invocation) {
	fmt.Fprintf(b, "\nbuild %s: cc %s\n", ninjaPath(inv.Output), ninjaPath(inv.Source))
	fmt.Fprintf(b, "  cmd = %s\n", ninjaValue(shellquote.Join(inv.Argv()...)))
}

var (
	ninjaPathEscaper  = strings.NewReplacer("$", "$$", " ", "$ ", ":", "$:", "\n", "$\n")
	ninjaValueEscaper = strings.NewReplacer("$", "$$", "\n", "$\n")
)

func ninjaPath(p string) string {
	return ninjaPathEscaper.Replace(p)
}

func ninjaPaths(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteByte(' ')
		b.WriteString(ninjaPath(p))
	}
	return b.String()
}

func ninjaValue(s string) string {
	return ninjaValueEscaper.Replace(s)
}
