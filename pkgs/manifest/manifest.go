// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package manifest loads and validates cpkg project manifests.
//
// A manifest is a cpkg.toml (or cpkg.yaml) file at the root of a project.
// It names the project, its entry point and its dependencies:
//
//	[package]
//	name = "app"
//	entry = "src/main.c"
//
//	[dependencies]
//	stb = { path = "../stb" }
//	cjson = { git = "https://github.com/DaveGamble/cJSON", ref = "v1.7.18" }
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/goplus/cpkg/pkgs/mod/module"
)

const (
	// TOMLFile is the name of the default manifest file.
	TOMLFile = "cpkg.toml"
	// YAMLFile is the name of the alternative YAML manifest file.
	YAMLFile = "cpkg.yaml"

	// DefaultEntry is the conventional entry point. A manifest that names no
	// entry accepts any src/main.<ext> with a C or C++ extension.
	DefaultEntry = "src/main.c"
)

// ErrNotFound is returned by Find when a directory holds no manifest.
var ErrNotFound = errors.New("no cpkg.toml or cpkg.yaml found")

// Manifest is the in-memory form of a project's declaration file.
type Manifest struct {
	Name    string
	Version string // Strict semantic version, or empty
	Entry   string // Slash-separated path relative to Dir; empty for the convention
	Bin     string // Output path of the built executable, or empty

	Dependencies []Dependency // In declaration order
	Scripts      map[string]string

	Compiler  Compiler
	Formatter Formatter
	Docgen    Docgen

	File string // Path of the declaration file
	Dir  string // Directory holding the declaration file
}

// Dependency is one entry of the dependency list.
type Dependency struct {
	Alias  string
	Source module.Source
}

// Compiler holds compiler selection and pass-through flags.
type Compiler struct {
	Default string   // Preferred compiler kind: "gcc" or "clang"
	Flags   []string // Flags passed to every compile
	LDFlags []string // Flags passed to the link step

	// Kind-specific flags, appended after Flags when that kind is selected.
	GCC   []string
	Clang []string
}

// KindFlags returns the flags specific to the named compiler kind.
func (c *Compiler) KindFlags(kind string) []string {
	switch kind {
	case "gcc":
		return c.GCC
	case "clang":
		return c.Clang
	}
	return nil
}

// Formatter configures the pass-through source formatter.
type Formatter struct {
	Default          string // "clang-format" or "uncrustify"
	ClangFormatStyle string // Value for clang-format --style
	UncrustifyConfig string // Path of the uncrustify config file
}

// Docgen configures the pass-through documentation generator.
type Docgen struct {
	Default  string // "doxygen" or "cldoc"
	Doxyfile string // Path of a Doxyfile to use instead of the generated one
}

// Dependency returns the dependency declared under alias.
func (m *Manifest) Dependency(alias string) (Dependency, bool) {
	for _, d := range m.Dependencies {
		if d.Alias == alias {
			return d, true
		}
	}
	return Dependency{}, false
}

// Find returns the manifest file in dir, preferring cpkg.toml.
func Find(dir string) (string, error) {
	for _, name := range []string{TOMLFile, YAMLFile} {
		file := filepath.Join(dir, name)
		info, err := os.Stat(file)
		if err == nil && info.Mode().IsRegular() {
			return file, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: %w", dir, ErrNotFound)
}

// Load reads and validates the manifest at file.
func Load(file string) (*Manifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return Parse(file, data)
}

// LoadDir loads the manifest in dir. It returns an error wrapping ErrNotFound
// when dir has none.
func LoadDir(dir string) (*Manifest, error) {
	file, err := Find(dir)
	if err != nil {
		return nil, err
	}
	return Load(file)
}

// Parse decodes data as the manifest stored at file. The syntax is chosen
// by the file extension; anything other than .yaml/.yml is TOML.
func Parse(file string, data []byte) (*Manifest, error) {
	var (
		m   *Manifest
		err error
	)
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		m, err = parseYAML(file, data)
	default:
		m, err = parseTOML(file, data)
	}
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	m.File = abs
	m.Dir = filepath.Dir(abs)
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

func (m *Manifest) validate() error {
	if m.Name == "" {
		return m.fieldError("package.name", "missing project name")
	}
	if !identRE.MatchString(m.Name) {
		return m.fieldError("package.name", fmt.Sprintf("%q is not a valid identifier", m.Name))
	}
	if m.Version != "" {
		if _, err := semver.StrictNewVersion(m.Version); err != nil {
			return m.fieldError("package.version", fmt.Sprintf("%q is not a semantic version: %v", m.Version, err))
		}
	}
	if filepath.IsAbs(filepath.FromSlash(m.Entry)) {
		return m.fieldError("package.entry", "entry must be relative to the project directory")
	}
	switch m.Compiler.Default {
	case "", "gcc", "clang":
	default:
		return m.fieldError("compiler.default", fmt.Sprintf("unknown compiler %q (want gcc or clang)", m.Compiler.Default))
	}
	switch m.Formatter.Default {
	case "", "clang-format", "uncrustify":
	default:
		return m.fieldError("formatter.default", fmt.Sprintf("unknown formatter %q", m.Formatter.Default))
	}
	switch m.Docgen.Default {
	case "", "doxygen", "cldoc":
	default:
		return m.fieldError("docgen.default", fmt.Sprintf("unknown documentation generator %q", m.Docgen.Default))
	}

	seen := make(map[string]bool, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		field := "dependencies." + dep.Alias
		if !identRE.MatchString(dep.Alias) {
			return m.fieldError(field, fmt.Sprintf("%q is not a valid alias", dep.Alias))
		}
		if seen[dep.Alias] {
			return m.fieldError(field, "duplicate dependency alias")
		}
		seen[dep.Alias] = true

		src := dep.Source
		switch {
		case src.Path != "" && src.Git != "":
			return m.fieldError(field, "only one of path and git may be set")
		case src.Path == "" && src.Git == "":
			return m.fieldError(field, "one of path or git is required")
		case src.Path != "" && (src.Ref != "" || src.Subdir != ""):
			return m.fieldError(field, "ref and subdir only apply to git dependencies")
		}
		if src.Subdir != "" && (filepath.IsAbs(src.Subdir) || strings.HasPrefix(filepath.ToSlash(filepath.Clean(src.Subdir)), "..")) {
			return m.fieldError(field+".subdir", "subdir must stay inside the repository")
		}
	}
	return nil
}

func (m *Manifest) fieldError(field, reason string) error {
	return &ParseError{File: m.File, Field: field, Reason: reason}
}
