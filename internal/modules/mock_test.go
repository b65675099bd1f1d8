// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package modules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goplus/cpkg/internal/vcs"
	"github.com/goplus/cpkg/pkgs/mod/module"
)

// mockFetcher serves git sources from directories prepared by the test.
type mockFetcher struct {
	root  string
	repos map[string]string // "url@ref" -> manifest text, "" for a flat tree
	errs  map[string]error  // "url@ref" -> fetch error

	mu    sync.Mutex
	calls map[string]int
}

var _ vcs.Fetcher = (*mockFetcher)(nil)

func newMockFetcher(t *testing.T) *mockFetcher {
	return &mockFetcher{
		root:  t.TempDir(),
		repos: make(map[string]string),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *mockFetcher) Fetch(ctx context.Context, src module.Source) (string, error) {
	key := module.NormalizeURL(src.Git) + "@" + src.Ref
	f.mu.Lock()
	f.calls[key]++
	n := len(f.calls)
	f.mu.Unlock()

	if err, ok := f.errs[key]; ok {
		return "", err
	}
	text, ok := f.repos[key]
	if !ok {
		return "", fmt.Errorf("repository %s not found", key)
	}
	dir := filepath.Join(f.root, fmt.Sprintf("repo%d", n))
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0755); err != nil {
		return "", err
	}
	if text != "" {
		if err := os.WriteFile(filepath.Join(dir, "cpkg.toml"), []byte(text), 0644); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func (f *mockFetcher) count(url, ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url+"@"+ref]
}

func (f *mockFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}
