// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package emit

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goplus/cpkg/internal/plan"
	"github.com/kballard/go-shellquote"
)

func makefile(p *plan.Plan) []byte {
	var b bytes.Buffer
	b.WriteString(header)
	b.WriteString("\n.PHONY: all clean")
	if p.Mode == plan.Test {
		b.WriteString(" test")
	}
	fmt.Fprintf(&b, "\n\nall:%s\n", makePaths(outputs(p)))

	for _, inv := range p.Compiles {
		makeCompile(&b, inv)
	}
	for _, t := range p.Targets {
		for _, inv := range t.Compiles {
			makeCompile(&b, inv)
		}
		fmt.Fprintf(&b, "\n%s:%s\n", makePath(t.Output), makePaths(t.Objects))
		fmt.Fprintf(&b, "\t@mkdir -p %s\n", makeRecipe(filepath.Dir(t.Temp)))
		fmt.Fprintf(&b, "\t%s\n", makeRecipe(t.Link.Argv()...))
		fmt.Fprintf(&b, "\t%s\n", makeRecipe("mv", "-f", t.Temp, t.Output))
	}

	if p.Mode == plan.Test {
		// One shell runs every test so a failure does not stop the rest.
		b.WriteString("\ntest: all\n\t@status=0; \\\n")
		for _, t := range p.Targets {
			fmt.Fprintf(&b, "\t%s || { echo %s; status=1; }; \\\n", makeRecipe(runPath(t.Output)), makeRecipe("FAIL "+t.Name))
		}
		b.WriteString("\texit $$status\n")
	}
	fmt.Fprintf(&b, "\nclean:\n\t%s\n", makeRecipe("rm", "-rf", targetDir(p)))
	return b.Bytes()
}

func makeCompile(b *bytes.Buffer, inv *plan.Invocation) {
	fmt.Fprintf(b, "\n%s: %s\n", makePath(inv.Output), makePath(inv.Source))
	fmt.Fprintf(b, "\t@mkdir -p %s\n", makeRecipe(filepath.Dir(inv.Output)))
	fmt.Fprintf(b, "\t%s\n", makeRecipe(inv.Argv()...))
}

// runPath makes a relative executable path runnable by the shell.
func runPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return "." + string(filepath.Separator) + p
}

var makePathEscaper = strings.NewReplacer("$", "$$", " ", `\ `, "#", `\#`, ":", `\:`)

func makePath(p string) string {
	return makePathEscaper.Replace(p)
}

func makePaths(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteByte(' ')
		b.WriteString(makePath(p))
	}
	return b.String()
}

// makeRecipe quotes args for the shell and escapes the result for make.
func makeRecipe(args ...string) string {
	return strings.ReplaceAll(shellquote.Join(args...), "$", "$$")
}
