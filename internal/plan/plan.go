// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package plan turns resolved modules and their units into an ordered list
// of compiler and linker invocations.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/goplus/cpkg/internal/discover"
	"github.com/goplus/cpkg/internal/modules"
	"github.com/goplus/cpkg/internal/toolchain"
)

// Mode selects what a plan builds.
type Mode int

const (
	Build Mode = iota
	Run
	Test
)

func (m Mode) String() string {
	switch m {
	case Run:
		return "run"
	case Test:
		return "test"
	}
	return "build"
}

// Invocation is one compiler or linker process.
type Invocation struct {
	Command string   // Executable
	Args    []string // Arguments, excluding Command
	Dir     string   // Working directory
	Output  string   // File the invocation produces, relative to Dir or absolute
	Source  string   // Compiled file as passed to the compiler; empty for links

	// Unit is the compiled source; nil for link steps.
	Unit *discover.Unit
	// HeaderDirs lists the absolute directories whose headers the compile
	// can include: its source directory and every include directory.
	HeaderDirs []string
	// UpToDate marks a compile whose object is known to be current. The
	// executor skips it; emitters still write it.
	UpToDate bool
}

// Argv returns Command followed by Args.
func (inv *Invocation) Argv() []string {
	return append([]string{inv.Command}, inv.Args...)
}

// Target is one link step and the compiles only it needs.
type Target struct {
	Name     string
	Compiles []*Invocation // Compiles local to this target
	Objects  []string      // Link inputs, in link order
	Link     *Invocation
	Output   string // Final artifact
	Temp     string // Path the linker writes; renamed to Output on success

	// Test is the test unit of a Test plan target.
	Test *discover.Unit
}

// Plan is the complete, ordered description of one build.
type Plan struct {
	Mode      Mode
	Dir       string // Project root; working directory of every invocation
	TargetDir string

	// Compiles shared by every target, in plan order.
	Compiles []*Invocation
	Targets  []*Target
}

// Invocations returns every invocation in the order an executor runs them
// without parallelism: shared compiles, then per target its compiles and
// its link step.
func (p *Plan) Invocations() []*Invocation {
	out := slices.Clone(p.Compiles)
	for _, t := range p.Targets {
		out = append(out, t.Compiles...)
		out = append(out, t.Link)
	}
	return out
}

// Abs returns path interpreted relative to the plan directory.
func (p *Plan) Abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Dir, path)
}

// StampChecker reports whether a compiled object is current for its source,
// its argument list and the headers under headerDirs.
type StampChecker interface {
	UpToDate(source, object string, args, headerDirs []string) bool
}

// Options configures New.
type Options struct {
	// Bin overrides the artifact path of Build and Run plans.
	Bin string
	// TargetDir overrides <project>/target.
	TargetDir string
	// Stamps enables the staleness check for Build and Run plans.
	Stamps StampChecker
	// GOOS selects executable naming. Defaults to runtime.GOOS.
	GOOS string
}

// New builds the plan for mode from the resolved graph g, the units of its
// modules (in the order of g.Modules) and the host capability.
func New(g *modules.Graph, groups []discover.Group, capab *toolchain.Capability, mode Mode, opts Options) (*Plan, error) {
	root := g.Root
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.TargetDir == "" {
		opts.TargetDir = filepath.Join(root.Dir, "target")
	}
	b := &builder{
		g:      g,
		groups: groups,
		capab:  capab,
		opts:   opts,
		pin:    root.Manifest.Compiler.Default,
		plan: &Plan{
			Mode:      mode,
			Dir:       root.Dir,
			TargetDir: opts.TargetDir,
		},
		kindFlags: make(map[string][]string),
	}
	b.collectFlags()

	var err error
	switch mode {
	case Test:
		err = b.testTargets()
	default:
		err = b.mainTarget()
	}
	if err != nil {
		return nil, err
	}
	if (mode == Build || mode == Run) && opts.Stamps != nil {
		b.markUpToDate()
	}
	return b.plan, nil
}

type builder struct {
	g      *modules.Graph
	groups []discover.Group
	capab  *toolchain.Capability
	opts   Options
	pin    string
	plan   *Plan

	includes  []string            // -I flags of every module, graph order
	incDirs   []string            // Absolute include directories, graph order
	kindFlags map[string][]string // Pass-through flags per compiler kind
	ldflags   []string
}

// collectFlags gathers include and link flags in graph order.
func (b *builder) collectFlags() {
	var incs, ld []string
	for _, grp := range b.groups {
		for _, dir := range grp.Includes {
			incs = append(incs, "-I"+b.rel(dir))
			b.incDirs = append(b.incDirs, dir)
		}
		if mf := grp.Module.Manifest; mf != nil {
			ld = append(ld, mf.Compiler.LDFlags...)
		}
	}
	b.includes = dedup(incs)
	b.incDirs = dedup(b.incDirs)
	b.ldflags = dedup(ld)
}

// passFlags returns the pass-through compile flags for a compiler kind:
// every module's [compiler] flags and then its kind-specific flags, in
// graph order.
func (b *builder) passFlags(kind string) []string {
	if flags, ok := b.kindFlags[kind]; ok {
		return flags
	}
	var flags []string
	for _, grp := range b.groups {
		if mf := grp.Module.Manifest; mf != nil {
			flags = append(flags, mf.Compiler.Flags...)
			flags = append(flags, mf.Compiler.KindFlags(kind)...)
		}
	}
	flags = dedup(flags)
	b.kindFlags[kind] = flags
	return flags
}

func (b *builder) compiler(family toolchain.Family) (toolchain.Compiler, error) {
	comp, ok := b.capab.Compiler(family, b.pin)
	if !ok {
		return comp, &NoToolchainError{Family: family, Pin: b.pin}
	}
	return comp, nil
}

// compile returns the invocation that compiles u.
func (b *builder) compile(u *discover.Unit) (*Invocation, error) {
	comp, err := b.compiler(u.Family)
	if err != nil {
		return nil, err
	}
	args := slices.Clone(b.includes)
	for _, dir := range u.Includes {
		args = append(args, "-I"+b.rel(dir))
	}
	args = dedup(append(args, b.passFlags(comp.Kind)...))

	obj := b.rel(filepath.Join(b.opts.TargetDir, "obj", u.Module.Alias, filepath.FromSlash(u.Rel)+".o"))
	src := b.rel(u.Path)
	args = append(args, "-c", src, "-o", obj)

	dirs := append([]string{filepath.Dir(u.Path)}, u.Includes...)
	return &Invocation{
		Command:    comp.Name,
		Args:       args,
		Dir:        b.plan.Dir,
		Output:     obj,
		Source:     src,
		Unit:       u,
		HeaderDirs: dedup(append(dirs, b.incDirs...)),
	}, nil
}

// link returns the target linking objects into out. cxx selects the C++
// driver.
func (b *builder) link(name, out string, objects []string, cxx bool) (*Target, error) {
	family := toolchain.C
	if cxx {
		family = toolchain.CXX
	}
	comp, err := b.compiler(family)
	if err != nil {
		return nil, err
	}
	out = b.rel(out)
	temp := filepath.Join(filepath.Dir(out), "."+filepath.Base(out)+".tmp")

	args := slices.Clone(objects)
	args = append(args, b.ldflags...)
	args = append(args, "-o", temp)
	return &Target{
		Name:    name,
		Objects: objects,
		Output:  out,
		Temp:    temp,
		Link: &Invocation{
			Command: comp.Name,
			Args:    args,
			Dir:     b.plan.Dir,
			Output:  temp,
		},
	}, nil
}

// mainTarget plans the single executable of Build and Run.
func (b *builder) mainTarget() error {
	root := b.g.Root
	var mains []string
	var objects []string
	cxx := false
	for _, grp := range b.groups {
		for i := range grp.Units {
			u := &grp.Units[i]
			switch u.Kind {
			case discover.Test:
				continue
			case discover.Main:
				if grp.Module != root {
					continue
				}
				mains = append(mains, u.Rel)
			}
			inv, err := b.compile(u)
			if err != nil {
				return err
			}
			b.plan.Compiles = append(b.plan.Compiles, inv)
			objects = append(objects, inv.Output)
			cxx = cxx || u.Family == toolchain.CXX
		}
	}
	switch len(mains) {
	case 0:
		entry := root.Manifest.Entry
		if entry == "" {
			entry = discover.SrcDir + "/main.<ext>"
		}
		return fmt.Errorf("%w: %s not found in %s", ErrNoEntryPoint, entry, root.Dir)
	case 1:
	default:
		return &AmbiguousEntryPointError{Units: mains}
	}

	out := b.opts.Bin
	if out == "" && root.Manifest.Bin != "" {
		out = filepath.Join(root.Dir, filepath.FromSlash(root.Manifest.Bin))
	}
	if out == "" {
		out = filepath.Join(b.opts.TargetDir, b.exe(root.Alias))
	} else if !filepath.IsAbs(out) {
		out = filepath.Join(root.Dir, out)
	}
	t, err := b.link(root.Alias, out, objects, cxx)
	if err != nil {
		return err
	}
	b.plan.Targets = []*Target{t}
	return nil
}

// testTargets plans one executable per root test unit, each linked with
// every library unit.
func (b *builder) testTargets() error {
	root := b.g.Root
	type slot struct {
		obj  string
		test *discover.Unit
	}
	var (
		slots []slot
		tests []*discover.Unit
		cxx   bool
	)
	objOf := make(map[*discover.Unit]*Invocation)
	for _, grp := range b.groups {
		for i := range grp.Units {
			u := &grp.Units[i]
			switch {
			case u.Kind == discover.Library:
				inv, err := b.compile(u)
				if err != nil {
					return err
				}
				b.plan.Compiles = append(b.plan.Compiles, inv)
				slots = append(slots, slot{obj: inv.Output})
				cxx = cxx || u.Family == toolchain.CXX
			case u.Kind == discover.Test && grp.Module == root:
				inv, err := b.compile(u)
				if err != nil {
					return err
				}
				objOf[u] = inv
				tests = append(tests, u)
				slots = append(slots, slot{obj: inv.Output, test: u})
			}
		}
	}

	owner := make(map[string]string, len(tests))
	for _, tu := range tests {
		name := TestName(tu.Rel)
		if prev, ok := owner[name]; ok {
			return &TestNameConflictError{Name: name, Units: []string{prev, tu.Rel}}
		}
		owner[name] = tu.Rel
	}

	for _, tu := range tests {
		var objects []string
		for _, s := range slots {
			if s.test == nil || s.test == tu {
				objects = append(objects, s.obj)
			}
		}
		name := TestName(tu.Rel)
		out := filepath.Join(b.opts.TargetDir, "test", b.exe(name))
		t, err := b.link(name, out, objects, cxx || tu.Family == toolchain.CXX)
		if err != nil {
			return err
		}
		t.Compiles = []*Invocation{objOf[tu]}
		t.Test = tu
		b.plan.Targets = append(b.plan.Targets, t)
	}
	return nil
}

// markUpToDate consults the stamp checker when objects from a previous
// run exist.
func (b *builder) markUpToDate() {
	if info, err := os.Stat(filepath.Join(b.opts.TargetDir, "obj")); err != nil || !info.IsDir() {
		return
	}
	for _, inv := range b.plan.Compiles {
		inv.UpToDate = b.opts.Stamps.UpToDate(inv.Unit.Path, b.plan.Abs(inv.Output), inv.Argv(), inv.HeaderDirs)
	}
}

// TestName derives the executable name of a test unit from its path, e.g.
// "tests/parse.c" becomes "tests_parse".
func TestName(rel string) string {
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.NewReplacer("/", "_", "\\", "_").Replace(rel)
}

func (b *builder) exe(name string) string {
	if b.opts.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// rel returns p relative to the project root when p lies inside it.
func (b *builder) rel(p string) string {
	r, err := filepath.Rel(b.plan.Dir, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return p
	}
	return r
}

// dedup removes repeated flags, keeping the first occurrence.
func dedup(flags []string) []string {
	seen := make(map[string]bool, len(flags))
	out := flags[:0:0]
	for _, f := range flags {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
