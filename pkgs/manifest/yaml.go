// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"bytes"
	"slices"
	"strconv"
	"strings"

	"github.com/goplus/cpkg/pkgs/mod/module"
	"gopkg.in/yaml.v3"
)

type yamlFlags struct {
	Flags []string `yaml:"flags,omitempty"`
}

type yamlDep struct {
	Alias  string `yaml:"alias"`
	Path   string `yaml:"path,omitempty"`
	Git    string `yaml:"git,omitempty"`
	Ref    string `yaml:"ref,omitempty"`
	Subdir string `yaml:"subdir,omitempty"`
}

type yamlDoc struct {
	Package struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version,omitempty"`
		Entry   string `yaml:"entry,omitempty"`
		Bin     string `yaml:"bin,omitempty"`
	} `yaml:"package"`
	Dependencies []yamlDep         `yaml:"dependencies,omitempty"`
	Scripts      map[string]string `yaml:"scripts,omitempty"`
	Compiler     struct {
		Default string    `yaml:"default,omitempty"`
		Flags   []string  `yaml:"flags,omitempty"`
		LDFlags []string  `yaml:"ldflags,omitempty"`
		GCC     yamlFlags `yaml:"gcc,omitempty"`
		Clang   yamlFlags `yaml:"clang,omitempty"`
	} `yaml:"compiler,omitempty"`
	Formatter struct {
		Default     string `yaml:"default,omitempty"`
		ClangFormat struct {
			Style string `yaml:"style,omitempty"`
		} `yaml:"clang-format,omitempty"`
		Uncrustify struct {
			Config string `yaml:"config,omitempty"`
		} `yaml:"uncrustify,omitempty"`
	} `yaml:"formatter,omitempty"`
	Docgen struct {
		Default string `yaml:"default,omitempty"`
		Doxygen struct {
			Doxyfile string `yaml:"doxyfile,omitempty"`
		} `yaml:"doxygen,omitempty"`
	} `yaml:"docgen,omitempty"`
}

func parseYAML(file string, data []byte) (*Manifest, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{File: file, Reason: err.Error(), Err: err}
	}
	if err := checkYAMLKeys(file, &root, nil); err != nil {
		return nil, err
	}

	var doc yamlDoc
	if err := root.Decode(&doc); err != nil {
		return nil, &ParseError{File: file, Reason: err.Error(), Err: err}
	}
	m := &Manifest{
		Name:    doc.Package.Name,
		Version: doc.Package.Version,
		Entry:   doc.Package.Entry,
		Bin:     doc.Package.Bin,
		Scripts: doc.Scripts,
		Compiler: Compiler{
			Default: doc.Compiler.Default,
			Flags:   doc.Compiler.Flags,
			LDFlags: doc.Compiler.LDFlags,
			GCC:     doc.Compiler.GCC.Flags,
			Clang:   doc.Compiler.Clang.Flags,
		},
		Formatter: Formatter{
			Default:          doc.Formatter.Default,
			ClangFormatStyle: doc.Formatter.ClangFormat.Style,
			UncrustifyConfig: doc.Formatter.Uncrustify.Config,
		},
		Docgen: Docgen{
			Default:  doc.Docgen.Default,
			Doxyfile: doc.Docgen.Doxygen.Doxyfile,
		},
	}
	for i, d := range doc.Dependencies {
		if d.Alias == "" {
			return nil, &ParseError{File: file, Field: "dependencies." + strconv.Itoa(i) + ".alias", Reason: "missing alias"}
		}
		m.Dependencies = append(m.Dependencies, Dependency{
			Alias:  d.Alias,
			Source: module.Source{Path: d.Path, Git: d.Git, Ref: d.Ref, Subdir: d.Subdir},
		})
	}
	return m, nil
}

// checkYAMLKeys rejects mapping keys that the manifest schema does not know.
func checkYAMLKeys(file string, n *yaml.Node, path []string) error {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := checkYAMLKeys(file, c, path); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		known, checked := knownFields[strings.Join(path, ".")]
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			p := append(slices.Clone(path), key)
			if checked && !slices.Contains(known, key) {
				return unknownField(file, p)
			}
			if err := checkYAMLKeys(file, n.Content[i+1], p); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		if strings.Join(path, ".") != "dependencies" {
			return nil
		}
		for i, item := range n.Content {
			if item.Kind != yaml.MappingNode {
				return &ParseError{File: file, Field: "dependencies." + strconv.Itoa(i), Reason: "dependency must be a mapping"}
			}
			name := strconv.Itoa(i)
			for j := 0; j+1 < len(item.Content); j += 2 {
				if item.Content[j].Value == "alias" {
					name = item.Content[j+1].Value
				}
			}
			for j := 0; j+1 < len(item.Content); j += 2 {
				key := item.Content[j].Value
				if key != "alias" && !slices.Contains(knownFields["dependency"], key) {
					return unknownField(file, []string{"dependencies", name, key})
				}
			}
		}
	}
	return nil
}

// encodeYAML renders m as cpkg.yaml.
func encodeYAML(m *Manifest) ([]byte, error) {
	var doc yamlDoc
	doc.Package.Name = m.Name
	doc.Package.Version = m.Version
	doc.Package.Entry = m.Entry
	doc.Package.Bin = m.Bin
	for _, d := range m.Dependencies {
		doc.Dependencies = append(doc.Dependencies, yamlDep{
			Alias:  d.Alias,
			Path:   d.Source.Path,
			Git:    d.Source.Git,
			Ref:    d.Source.Ref,
			Subdir: d.Source.Subdir,
		})
	}
	doc.Scripts = m.Scripts
	doc.Compiler.Default = m.Compiler.Default
	doc.Compiler.Flags = m.Compiler.Flags
	doc.Compiler.LDFlags = m.Compiler.LDFlags
	doc.Compiler.GCC.Flags = m.Compiler.GCC
	doc.Compiler.Clang.Flags = m.Compiler.Clang
	doc.Formatter.Default = m.Formatter.Default
	doc.Formatter.ClangFormat.Style = m.Formatter.ClangFormatStyle
	doc.Formatter.Uncrustify.Config = m.Formatter.UncrustifyConfig
	doc.Docgen.Default = m.Docgen.Default
	doc.Docgen.Doxygen.Doxyfile = m.Docgen.Doxyfile

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
