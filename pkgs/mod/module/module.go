// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package module defines the module.Source type along with support code.
package module

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind tells which variant a Source is.
type Kind int

const (
	Local Kind = iota
	Remote
)

func (k Kind) String() string {
	if k == Remote {
		return "git"
	}
	return "path"
}

// A Source describes where a dependency comes from: either a local
// directory or a git repository at an optional ref.
type Source struct {
	Path   string // Local directory, as declared or made absolute by Abs
	Git    string // Remote repository URL
	Ref    string // Branch, tag or commit; empty means the remote HEAD
	Subdir string // Subdirectory of the fetched tree used as the root
}

// Kind reports whether s is a local or a remote source.
func (s Source) Kind() Kind {
	if s.Git != "" {
		return Remote
	}
	return Local
}

// Abs returns a copy of s whose local path is absolute, interpreting a
// relative path against base. Remote sources are returned unchanged.
func (s Source) Abs(base string) Source {
	if s.Kind() == Remote || s.Path == "" {
		return s
	}
	p := filepath.FromSlash(s.Path)
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	s.Path = filepath.Clean(p)
	return s
}

// Equal reports whether s and o denote the same source tree.
// Local paths are compared as cleaned paths, so callers should compare
// sources produced by Abs.
func (s Source) Equal(o Source) bool {
	if s.Kind() != o.Kind() {
		return false
	}
	if s.Kind() == Local {
		return filepath.Clean(s.Path) == filepath.Clean(o.Path)
	}
	return NormalizeURL(s.Git) == NormalizeURL(o.Git) &&
		s.Ref == o.Ref &&
		cleanSubdir(s.Subdir) == cleanSubdir(o.Subdir)
}

// Key returns a string that is identical for equal sources.
func (s Source) Key() string {
	if s.Kind() == Local {
		return "path:" + filepath.ToSlash(filepath.Clean(s.Path))
	}
	return fmt.Sprintf("git:%s@%s//%s", NormalizeURL(s.Git), s.Ref, cleanSubdir(s.Subdir))
}

func (s Source) String() string {
	if s.Kind() == Local {
		return s.Path
	}
	str := s.Git
	if s.Ref != "" {
		str += "@" + s.Ref
	}
	if sub := cleanSubdir(s.Subdir); sub != "" {
		str += "//" + sub
	}
	return str
}

// NormalizeURL trims the parts of a repository URL that do not change which
// repository it names: surrounding space, trailing slashes and a ".git" suffix.
func NormalizeURL(url string) string {
	url = strings.TrimSpace(url)
	url = strings.TrimRight(url, "/")
	return strings.TrimSuffix(url, ".git")
}

func cleanSubdir(dir string) string {
	if dir == "" {
		return ""
	}
	dir = filepath.ToSlash(filepath.Clean(dir))
	if dir == "." {
		return ""
	}
	return strings.Trim(dir, "/")
}

// EscapePath returns the escaped form of the given repository URL as a
// relative file system path, e.g. "https://github.com/nothings/stb.git"
// becomes "github.com/nothings/stb". It fails if nothing usable remains.
func EscapePath(url string) (escaped string, err error) {
	url = NormalizeURL(url)
	if i := strings.Index(url, "://"); i >= 0 {
		url = url[i+3:]
	}
	// scp-like syntax: git@host:owner/repo
	if at := strings.Index(url, "@"); at >= 0 && !strings.Contains(url[:at], "/") {
		url = url[at+1:]
	}
	url = strings.Replace(url, ":", "/", 1)

	var parts []string
	for _, p := range strings.Split(url, "/") {
		switch p {
		case "", ".", "..":
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("invalid repository url: %q", url)
	}
	return filepath.Localize(strings.Join(parts, "/"))
}
