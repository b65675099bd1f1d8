// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// mockVCS implements VCS for unit testing. Sync creates a .git directory
// and a marker file naming the ref so that tests can inspect checkouts.
type mockVCS struct {
	mu       sync.Mutex
	syncs    []string
	syncFunc func(ctx context.Context, remote, ref, dir string) error
}

func (m *mockVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	m.mu.Lock()
	m.syncs = append(m.syncs, remote+"@"+ref)
	m.mu.Unlock()
	if m.syncFunc != nil {
		return m.syncFunc(ctx, remote, ref, dir)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "REF"), []byte(ref), 0644)
}

func (m *mockVCS) Head(ctx context.Context, dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "REF"))
	return string(data), err
}
