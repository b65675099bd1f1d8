// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/pkgs/mod/module"
)

// Fetcher materializes a remote source on the local file system and
// returns the directory holding the checked-out tree.
type Fetcher interface {
	Fetch(ctx context.Context, src module.Source) (string, error)
}

// GitFetcher is a Fetcher that keeps shallow git checkouts under Root.
//
// Each (url, ref) pair gets its own directory, named after the escaped URL
// and a short digest of the pair, so checkouts of different refs never
// share a work tree. A checkout is built in a temporary directory and
// renamed into place, so an interrupted fetch leaves nothing behind that a
// later run would mistake for a complete one.
type GitFetcher struct {
	VCS    VCS
	Root   string
	Update bool // Sync existing checkouts again
}

var _ Fetcher = (*GitFetcher)(nil)

// NewGitFetcher returns a GitFetcher rooted at root using git.
func NewGitFetcher(root string, opts ...GitOption) *GitFetcher {
	return &GitFetcher{VCS: NewGitVCS(opts...), Root: root}
}

// Dir returns the checkout directory Fetch uses for src.
func (f *GitFetcher) Dir(src module.Source) (string, error) {
	escaped, err := module.EscapePath(src.Git)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256([]byte(module.NormalizeURL(src.Git) + "@" + src.Ref))
	return filepath.Join(f.Root, escaped+"@"+hex.EncodeToString(sum[:6])), nil
}

func (f *GitFetcher) Fetch(ctx context.Context, src module.Source) (string, error) {
	if src.Kind() != module.Remote {
		return "", fmt.Errorf("fetch %s: not a git source", src)
	}
	dir, err := f.Dir(src)
	if err != nil {
		return "", err
	}
	log := ctxlog.FromContext(ctx)

	_, err = os.Stat(filepath.Join(dir, ".git"))
	switch {
	case err == nil && !f.Update:
		log.Debug("using cached checkout", "source", src.String(), "dir", dir)
		return dir, nil
	case err == nil:
		log.Info("updating", "source", src.String())
		if err := f.VCS.Sync(ctx, src.Git, src.Ref, dir); err != nil {
			return "", err
		}
		return dir, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", err
	}

	log.Info("fetching", "source", src.String())
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp(filepath.Dir(dir), ".fetch-*")
	if err != nil {
		return "", err
	}
	if err := f.VCS.Sync(ctx, src.Git, src.Ref, tmp); err != nil {
		os.RemoveAll(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dir); err != nil {
		os.RemoveAll(tmp)
		// Another process may have completed the same checkout first.
		if _, statErr := os.Stat(filepath.Join(dir, ".git")); statErr == nil {
			return dir, nil
		}
		return "", err
	}
	return dir, nil
}
