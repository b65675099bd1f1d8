// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package modules resolves the dependency graph of a cpkg project.
package modules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/vcs"
	"github.com/goplus/cpkg/pkgs/manifest"
	"github.com/goplus/cpkg/pkgs/mod/module"
)

// DefaultConcurrency bounds concurrent fetches when Options leaves it unset.
const DefaultConcurrency = 4

// Module is one resolved node of the dependency graph.
type Module struct {
	Alias  string
	Source module.Source // Local paths are absolute
	Dir    string        // Root of the module's source tree

	// Manifest is nil for a flat tree without a cpkg manifest.
	Manifest *manifest.Manifest

	Deps []*Module // Direct dependencies in declaration order
}

// Graph is the result of resolution.
type Graph struct {
	Root *Module
	// Modules lists every node once, in depth-first pre-order starting at
	// the root with dependencies visited in declaration order.
	Modules []*Module
}

// Lookup returns the module resolved under alias, or nil.
func (g *Graph) Lookup(alias string) *Module {
	for _, m := range g.Modules {
		if m.Alias == alias {
			return m
		}
	}
	return nil
}

// Options contains options for Load.
type Options struct {
	// Fetcher materializes git dependencies. Resolving a graph with a git
	// dependency and no Fetcher fails with a FetchError.
	Fetcher vcs.Fetcher
	// Concurrency bounds concurrent fetches. Defaults to DefaultConcurrency.
	Concurrency int
}

type fetchResult struct {
	dir string
	err error
}

type loader struct {
	opts Options

	resolved map[string]*Module
	order    []*Module

	group   singleflight.Group
	mu      sync.Mutex
	fetched map[string]fetchResult
}

// Load resolves the dependencies of root transitively.
//
// The root is recorded under its manifest name with a local source of its
// own directory, so a dependency that points back at the project is
// recognized. On error the graph is nil.
func Load(ctx context.Context, root *manifest.Manifest, opts Options) (*Graph, error) {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	l := &loader{
		opts:     opts,
		resolved: make(map[string]*Module),
		fetched:  make(map[string]fetchResult),
	}
	main := &Module{
		Alias:    root.Name,
		Source:   module.Source{Path: root.Dir},
		Dir:      root.Dir,
		Manifest: root,
	}
	l.resolved[main.Alias] = main
	l.order = append(l.order, main)

	if err := l.loadDeps(ctx, main, []string{main.Alias}); err != nil {
		return nil, err
	}
	return &Graph{Root: main, Modules: l.order}, nil
}

// loadDeps resolves the declared dependencies of parent. stack holds the
// aliases on the path from the root to parent, parent included.
func (l *loader) loadDeps(ctx context.Context, parent *Module, stack []string) error {
	if parent.Manifest == nil {
		return nil
	}
	log := ctxlog.FromContext(ctx)
	deps := parent.Manifest.Dependencies
	l.prefetch(ctx, parent, stack)

	for _, dep := range deps {
		src := dep.Source.Abs(parent.Dir)
		if have, ok := l.resolved[dep.Alias]; ok {
			if !have.Source.Equal(src) {
				return &ConflictError{Alias: dep.Alias, Have: have.Source, Want: src, By: parent.Alias}
			}
			if i := slices.Index(stack, dep.Alias); i >= 0 {
				if dep.Alias == parent.Alias {
					log.Debug("skipping self dependency", "module", parent.Alias)
					continue
				}
				return &CycleError{Cycle: append(slices.Clone(stack[i:]), dep.Alias)}
			}
			parent.Deps = append(parent.Deps, have)
			continue
		}

		dir, err := l.locate(ctx, dep.Alias, src, dep.Source)
		if err != nil {
			return err
		}
		m := &Module{Alias: dep.Alias, Source: src, Dir: dir}
		m.Manifest, err = manifest.LoadDir(dir)
		if errors.Is(err, manifest.ErrNotFound) {
			m.Manifest, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("dependency %q: %w", dep.Alias, err)
		}
		log.Debug("resolved", "alias", m.Alias, "source", src.String(), "dir", dir)

		l.resolved[m.Alias] = m
		l.order = append(l.order, m)
		parent.Deps = append(parent.Deps, m)
		if err := l.loadDeps(ctx, m, append(stack[:len(stack):len(stack)], m.Alias)); err != nil {
			return err
		}
	}
	return nil
}

// locate returns the root directory of the dependency alias.
func (l *loader) locate(ctx context.Context, alias string, src, declared module.Source) (string, error) {
	if src.Kind() == module.Local {
		if info, err := os.Stat(src.Path); err != nil || !info.IsDir() {
			return "", &NotFoundError{Alias: alias, Path: declared.Path, Dir: src.Path}
		}
		return src.Path, nil
	}

	dir, err := l.fetch(ctx, src)
	if err != nil {
		return "", &FetchError{Alias: alias, Source: src, Err: err}
	}
	if src.Subdir != "" {
		dir = filepath.Join(dir, filepath.FromSlash(src.Subdir))
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return "", &NotFoundError{Alias: alias, Path: src.String(), Dir: dir}
		}
	}
	return dir, nil
}

// fetch materializes src at most once per repository and ref, sharing a
// fetch that is already in flight.
func (l *loader) fetch(ctx context.Context, src module.Source) (string, error) {
	if l.opts.Fetcher == nil {
		return "", errors.New("no fetcher configured for git dependencies")
	}
	key := module.Source{Git: src.Git, Ref: src.Ref}.Key()
	v, err, _ := l.group.Do(key, func() (any, error) {
		l.mu.Lock()
		r, ok := l.fetched[key]
		l.mu.Unlock()
		if !ok {
			r.dir, r.err = l.opts.Fetcher.Fetch(ctx, src)
			l.mu.Lock()
			l.fetched[key] = r
			l.mu.Unlock()
		}
		return r.dir, r.err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// prefetch starts the git fetches parent needs concurrently. Results are
// memoized; failures are reported when loadDeps reaches the entry so that
// errors surface in declaration order. Nothing is prefetched when a local
// entry of parent is missing, since resolution is bound to fail.
func (l *loader) prefetch(ctx context.Context, parent *Module, stack []string) {
	if l.opts.Fetcher == nil || l.missingLocal(parent) {
		return
	}
	var g errgroup.Group
	g.SetLimit(l.opts.Concurrency)
	for _, dep := range parent.Manifest.Dependencies {
		if dep.Source.Kind() != module.Remote || slices.Contains(stack, dep.Alias) {
			continue
		}
		if _, ok := l.resolved[dep.Alias]; ok {
			continue
		}
		src := dep.Source
		g.Go(func() error {
			l.fetch(ctx, src)
			return nil
		})
	}
	g.Wait()
}

// missingLocal reports whether a path dependency of parent does not exist.
func (l *loader) missingLocal(parent *Module) bool {
	for _, dep := range parent.Manifest.Dependencies {
		if dep.Source.Kind() != module.Local {
			continue
		}
		if _, ok := l.resolved[dep.Alias]; ok {
			continue
		}
		src := dep.Source.Abs(parent.Dir)
		if info, err := os.Stat(src.Path); err != nil || !info.IsDir() {
			return true
		}
	}
	return false
}
