// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// ParseError reports a malformed or unknown manifest field.
type ParseError struct {
	File    string
	Field   string // Dotted field path, e.g. "package.name"; may be empty
	Reason  string
	Suggest string // Closest known field name, if any
	Err     error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.File)
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Suggest != "" {
		fmt.Fprintf(&b, " (did you mean %q?)", e.Suggest)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Known fields per table, used for unknown-field checks and suggestions.
var knownFields = map[string][]string{
	"":                       {"package", "dependencies", "scripts", "compiler", "formatter", "docgen"},
	"package":                {"name", "version", "entry", "bin"},
	"dependency":             {"path", "git", "ref", "subdir"},
	"compiler":               {"default", "flags", "ldflags", "gcc", "clang"},
	"compiler.gcc":           {"flags"},
	"compiler.clang":         {"flags"},
	"formatter":              {"default", "clang-format", "uncrustify"},
	"formatter.clang-format": {"style"},
	"formatter.uncrustify":   {"config"},
	"docgen":                 {"default", "doxygen"},
	"docgen.doxygen":         {"doxyfile"},
}

// tableOf maps a dotted field path to the key of its table in knownFields.
func tableOf(path []string) string {
	parent := path[:len(path)-1]
	if len(parent) == 2 && parent[0] == "dependencies" {
		return "dependency"
	}
	return strings.Join(parent, ".")
}

// unknownField builds the error for a field that no table declares.
func unknownField(file string, path []string) *ParseError {
	e := &ParseError{
		File:   file,
		Field:  strings.Join(path, "."),
		Reason: "unknown field",
	}
	if known, ok := knownFields[tableOf(path)]; ok {
		e.Suggest = suggest(path[len(path)-1], known)
	}
	return e
}

// suggest returns the known name closest to name, or "".
func suggest(name string, known []string) string {
	if matches := fuzzy.Find(name, known); len(matches) > 0 {
		return matches[0].Str
	}
	// A misspelling is rarely a subsequence, so also try the reverse.
	for _, k := range known {
		if len(fuzzy.Find(k, []string{name})) > 0 {
			return k
		}
	}
	return ""
}
