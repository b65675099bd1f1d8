// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"bytes"
	"errors"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goplus/cpkg/pkgs/mod/module"
)

type tomlFlags struct {
	Flags []string `toml:"flags,omitempty"`
}

type tomlPackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version,omitempty"`
	Entry   string `toml:"entry,omitempty"`
	Bin     string `toml:"bin,omitempty"`
}

type tomlDep struct {
	Path   string `toml:"path"`
	Git    string `toml:"git"`
	Ref    string `toml:"ref"`
	Subdir string `toml:"subdir"`
}

type tomlCompiler struct {
	Default string     `toml:"default,omitempty"`
	Flags   []string   `toml:"flags,omitempty"`
	LDFlags []string   `toml:"ldflags,omitempty"`
	GCC     *tomlFlags `toml:"gcc,omitempty"`
	Clang   *tomlFlags `toml:"clang,omitempty"`
}

type tomlFormatter struct {
	Default     string `toml:"default,omitempty"`
	ClangFormat *struct {
		Style string `toml:"style"`
	} `toml:"clang-format,omitempty"`
	Uncrustify *struct {
		Config string `toml:"config"`
	} `toml:"uncrustify,omitempty"`
}

type tomlDocgen struct {
	Default string `toml:"default,omitempty"`
	Doxygen *struct {
		Doxyfile string `toml:"doxyfile"`
	} `toml:"doxygen,omitempty"`
}

// tomlDoc mirrors the table layout of cpkg.toml. Dependencies are decoded
// separately so their declaration order survives.
type tomlDoc struct {
	Package      tomlPackage        `toml:"package"`
	Dependencies map[string]tomlDep `toml:"dependencies,omitempty"`
	Scripts      map[string]string  `toml:"scripts,omitempty"`
	Compiler     *tomlCompiler      `toml:"compiler,omitempty"`
	Formatter    *tomlFormatter     `toml:"formatter,omitempty"`
	Docgen       *tomlDocgen        `toml:"docgen,omitempty"`
}

var lastKeyRE = regexp.MustCompile(`last key "([^"]*)"`)

func parseTOML(file string, data []byte) (*Manifest, error) {
	var doc tomlDoc
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		e := &ParseError{File: file, Reason: err.Error(), Err: err}
		var perr toml.ParseError
		if errors.As(err, &perr) {
			e.Field = perr.LastKey
			e.Reason = perr.Message
		} else if m := lastKeyRE.FindStringSubmatch(err.Error()); m != nil {
			e.Field = m[1]
		}
		return nil, e
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, unknownField(file, undecoded[0])
	}

	m := &Manifest{
		Name:    doc.Package.Name,
		Version: doc.Package.Version,
		Entry:   doc.Package.Entry,
		Bin:     doc.Package.Bin,
		Scripts: doc.Scripts,
	}
	for _, key := range md.Keys() {
		if len(key) != 2 || key[0] != "dependencies" {
			continue
		}
		d := doc.Dependencies[key[1]]
		m.Dependencies = append(m.Dependencies, Dependency{
			Alias:  key[1],
			Source: module.Source{Path: d.Path, Git: d.Git, Ref: d.Ref, Subdir: d.Subdir},
		})
	}
	if c := doc.Compiler; c != nil {
		m.Compiler = Compiler{Default: c.Default, Flags: c.Flags, LDFlags: c.LDFlags}
		if c.GCC != nil {
			m.Compiler.GCC = c.GCC.Flags
		}
		if c.Clang != nil {
			m.Compiler.Clang = c.Clang.Flags
		}
	}
	if f := doc.Formatter; f != nil {
		m.Formatter.Default = f.Default
		if f.ClangFormat != nil {
			m.Formatter.ClangFormatStyle = f.ClangFormat.Style
		}
		if f.Uncrustify != nil {
			m.Formatter.UncrustifyConfig = f.Uncrustify.Config
		}
	}
	if d := doc.Docgen; d != nil {
		m.Docgen.Default = d.Default
		if d.Doxygen != nil {
			m.Docgen.Doxyfile = d.Doxygen.Doxyfile
		}
	}
	return m, nil
}

// encodeTOML renders m as cpkg.toml. The [dependencies] table is written by
// hand because the encoder sorts map keys and declaration order matters.
func encodeTOML(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""

	pkg := struct {
		Package tomlPackage `toml:"package"`
	}{tomlPackage{Name: m.Name, Version: m.Version, Entry: m.Entry, Bin: m.Bin}}
	if err := enc.Encode(pkg); err != nil {
		return nil, err
	}

	buf.WriteString("\n[dependencies]\n")
	for _, dep := range m.Dependencies {
		if err := enc.Encode(map[string]inlineSource{dep.Alias: {dep.Source}}); err != nil {
			return nil, err
		}
	}

	var rest struct {
		Scripts   map[string]string `toml:"scripts,omitempty"`
		Compiler  *tomlCompiler     `toml:"compiler,omitempty"`
		Formatter *tomlFormatter    `toml:"formatter,omitempty"`
		Docgen    *tomlDocgen       `toml:"docgen,omitempty"`
	}
	rest.Scripts = m.Scripts
	if c := m.Compiler; c.Default != "" || len(c.Flags)+len(c.LDFlags)+len(c.GCC)+len(c.Clang) > 0 {
		rest.Compiler = &tomlCompiler{Default: c.Default, Flags: c.Flags, LDFlags: c.LDFlags}
		if len(c.GCC) > 0 {
			rest.Compiler.GCC = &tomlFlags{Flags: c.GCC}
		}
		if len(c.Clang) > 0 {
			rest.Compiler.Clang = &tomlFlags{Flags: c.Clang}
		}
	}
	if f := m.Formatter; f != (Formatter{}) {
		rest.Formatter = &tomlFormatter{Default: f.Default}
		if f.ClangFormatStyle != "" {
			rest.Formatter.ClangFormat = &struct {
				Style string `toml:"style"`
			}{f.ClangFormatStyle}
		}
		if f.UncrustifyConfig != "" {
			rest.Formatter.Uncrustify = &struct {
				Config string `toml:"config"`
			}{f.UncrustifyConfig}
		}
	}
	if d := m.Docgen; d != (Docgen{}) {
		rest.Docgen = &tomlDocgen{Default: d.Default}
		if d.Doxyfile != "" {
			rest.Docgen.Doxygen = &struct {
				Doxyfile string `toml:"doxyfile"`
			}{d.Doxyfile}
		}
	}
	if rest.Scripts != nil || rest.Compiler != nil || rest.Formatter != nil || rest.Docgen != nil {
		buf.WriteString("\n")
		if err := enc.Encode(rest); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// inlineSource encodes a dependency source as an inline table.
type inlineSource struct {
	module.Source
}

func (s inlineSource) MarshalTOML() ([]byte, error) {
	fields := make(map[string]string)
	if s.Git != "" {
		fields["git"] = s.Git
		if s.Ref != "" {
			fields["ref"] = s.Ref
		}
		if s.Subdir != "" {
			fields["subdir"] = s.Subdir
		}
	} else {
		fields["path"] = s.Path
	}
	data, err := toml.Marshal(fields)
	if err != nil {
		return nil, err
	}
	pairs := strings.Split(strings.TrimSpace(string(data)), "\n")
	return []byte("{ " + strings.Join(pairs, ", ") + " }"), nil
}
