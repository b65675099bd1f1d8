// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goplus/cpkg/internal/toolchain"
	"github.com/goplus/cpkg/pkgs/mod/module"
)

// mockFetcher serves git sources from directories prepared by the test.
type mockFetcher struct {
	mu    sync.Mutex
	dirs  map[string]string // url -> checkout
	calls int
}

func (f *mockFetcher) Fetch(ctx context.Context, src module.Source) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	dir, ok := f.dirs[module.NormalizeURL(src.Git)]
	if !ok {
		return "", fmt.Errorf("repository %s not found", src.Git)
	}
	return dir, nil
}

// clangHost is a capability with clang for C only.
func clangHost() *toolchain.Capability {
	return &toolchain.Capability{
		Compilers: map[toolchain.Family][]toolchain.Compiler{
			toolchain.C: {{Name: "clang", Kind: toolchain.Clang}},
		},
		Tools: map[string]string{},
	}
}

// writeTree writes files (slash path -> content) under dir.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, data := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}
