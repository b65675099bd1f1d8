// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Marshal renders m in the syntax selected by the extension of m.File.
func Marshal(m *Manifest) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(m.File)) {
	case ".yaml", ".yml":
		return encodeYAML(m)
	}
	return encodeTOML(m)
}

// Save validates m and writes it back to m.File.
func Save(m *Manifest) error {
	if err := m.validate(); err != nil {
		return err
	}
	data, err := Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.File, err)
	}
	tmp := m.File + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, m.File); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// AddDependency appends dep, or replaces the dependency of the same alias in
// place so that declaration order is kept.
func (m *Manifest) AddDependency(dep Dependency) {
	i := slices.IndexFunc(m.Dependencies, func(d Dependency) bool { return d.Alias == dep.Alias })
	if i >= 0 {
		m.Dependencies[i] = dep
		return
	}
	m.Dependencies = append(m.Dependencies, dep)
}

// RemoveDependency deletes the dependency declared under alias and reports
// whether there was one.
func (m *Manifest) RemoveDependency(alias string) bool {
	n := len(m.Dependencies)
	m.Dependencies = slices.DeleteFunc(m.Dependencies, func(d Dependency) bool { return d.Alias == alias })
	return len(m.Dependencies) != n
}
