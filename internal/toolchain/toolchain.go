// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package toolchain probes the host for compilers and auxiliary tools.
package toolchain

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/proc"
)

// Family is a source language family.
type Family string

const (
	C   Family = "c"
	CXX Family = "c++"
)

// FamilyOf returns the language family of a source file by its extension.
func FamilyOf(path string) (Family, bool) {
	switch filepath.Ext(path) {
	case ".c":
		return C, true
	case ".cc", ".cpp", ".cxx", ".c++":
		return CXX, true
	}
	return "", false
}

// Compiler kinds.
const (
	GCC   = "gcc"
	Clang = "clang"
	CC    = "cc" // Unknown driver following the cc conventions
)

// Compiler is one compiler front-end found on the host.
type Compiler struct {
	Name    string // Invocation name, e.g. "clang"
	Path    string // Resolved executable
	Kind    string // GCC, Clang or CC
	Version string // Canonical semantic version, e.g. "v17.0.6", or ""

	// FromEnv is set when the compiler was named by $CC or $CXX. Such a
	// compiler wins over a compiler pinned in the manifest.
	FromEnv bool
}

// Capability is the result of a probe. It is read-only once built.
type Capability struct {
	// Compilers per family, most preferred first.
	Compilers map[Family][]Compiler
	// Tools maps optional tool names to their executables.
	Tools map[string]string
}

// Preference lists the compilers tried per family, in order.
var Preference = map[Family][]string{
	C:   {"clang", "gcc", "cc"},
	CXX: {"clang++", "g++", "c++"},
}

// envVar names the variable that overrides the compiler of a family.
var envVar = map[Family]string{C: "CC", CXX: "CXX"}

// Tools lists the optional tools a probe looks for.
var Tools = []string{"clang-format", "uncrustify", "doxygen", "cldoc", "make", "ninja", "git"}

// Compiler returns the compiler to use for family. pin is the kind named
// by the manifest, or "" for the preference order. A compiler from the
// environment is returned regardless of pin.
func (c *Capability) Compiler(family Family, pin string) (Compiler, bool) {
	list := c.Compilers[family]
	for _, comp := range list {
		if comp.FromEnv || pin == "" || comp.Kind == pin {
			return comp, true
		}
	}
	return Compiler{}, false
}

// Tool returns the executable of the named optional tool.
func (c *Capability) Tool(name string) (string, bool) {
	path, ok := c.Tools[name]
	return path, ok
}

// Options configures Probe.
type Options struct {
	// LookPath resolves executables. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
	// Getenv reads the environment. Defaults to os.Getenv.
	Getenv func(key string) string
	// Spawner, when set, is used to run "<compiler> --version" to learn
	// the kind and version of each compiler.
	Spawner proc.Spawner
}

// Probe inspects the host. It never fails: a host without compilers
// yields a Capability with empty lists.
func Probe(ctx context.Context, opts Options) *Capability {
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	log := ctxlog.FromContext(ctx)

	c := &Capability{
		Compilers: make(map[Family][]Compiler),
		Tools:     make(map[string]string),
	}
	for _, family := range []Family{C, CXX} {
		if name := strings.TrimSpace(opts.Getenv(envVar[family])); name != "" {
			if path, err := opts.LookPath(name); err == nil {
				comp := probeCompiler(ctx, opts, name, path)
				comp.FromEnv = true
				c.Compilers[family] = append(c.Compilers[family], comp)
			} else {
				log.Warn("compiler from environment not found", "var", envVar[family], "name", name)
			}
		}
		for _, name := range Preference[family] {
			path, err := opts.LookPath(name)
			if err != nil {
				continue
			}
			c.Compilers[family] = append(c.Compilers[family], probeCompiler(ctx, opts, name, path))
		}
	}
	for _, name := range Tools {
		if path, err := opts.LookPath(name); err == nil {
			c.Tools[name] = path
		}
	}
	log.Debug("probed toolchain", "c", len(c.Compilers[C]), "c++", len(c.Compilers[CXX]), "tools", len(c.Tools))
	return c
}

func probeCompiler(ctx context.Context, opts Options, name, path string) Compiler {
	comp := Compiler{Name: name, Path: path, Kind: kindOf(name)}
	if opts.Spawner == nil {
		return comp
	}
	res, err := opts.Spawner.Spawn(ctx, proc.Command{Name: path, Args: []string{"--version"}})
	if err != nil || res.ExitCode != 0 {
		ctxlog.FromContext(ctx).Debug("compiler --version failed", "compiler", path, "error", err)
		return comp
	}
	kind, version := ParseVersion(string(res.Stdout))
	if kind != "" {
		comp.Kind = kind
	}
	comp.Version = version
	return comp
}

func kindOf(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	switch {
	case strings.Contains(base, "clang"):
		return Clang
	case strings.Contains(base, "gcc"), strings.Contains(base, "g++"):
		return GCC
	}
	return CC
}

var versionRE = regexp.MustCompile(`\b(\d+)\.(\d+)(?:\.(\d+))?\b`)

// ParseVersion extracts the compiler kind and canonical version from the
// output of "<compiler> --version". Either result may be empty.
func ParseVersion(out string) (kind, version string) {
	first, _, _ := strings.Cut(out, "\n")
	switch lower := strings.ToLower(out); {
	case strings.Contains(lower, "clang"):
		kind = Clang
	case strings.Contains(lower, "free software foundation"), strings.Contains(lower, "gcc"):
		kind = GCC
	}
	if m := versionRE.FindStringSubmatch(first); m != nil {
		v := "v" + m[1] + "." + m[2]
		if m[3] != "" {
			v += "." + m[3]
		}
		if semver.IsValid(v) {
			version = semver.Canonical(v)
		}
	}
	return kind, version
}
