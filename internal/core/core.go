// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package core ties manifest loading, dependency resolution, discovery and
// planning together for the command line.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goplus/cpkg/internal/build"
	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/discover"
	"github.com/goplus/cpkg/internal/emit"
	"github.com/goplus/cpkg/internal/env"
	"github.com/goplus/cpkg/internal/modules"
	"github.com/goplus/cpkg/internal/plan"
	"github.com/goplus/cpkg/internal/proc"
	"github.com/goplus/cpkg/internal/toolchain"
	"github.com/goplus/cpkg/internal/vcs"
	"github.com/goplus/cpkg/pkgs/manifest"
	"github.com/goplus/cpkg/pkgs/mod/module"
)

// Options configures resolution and planning.
type Options struct {
	// Fetcher materializes git dependencies. Defaults to a git fetcher
	// rooted at the source cache, created on first use.
	Fetcher vcs.Fetcher
	// Update re-syncs cached git checkouts with the default fetcher.
	Update bool
	// Capability is probed on the host when nil.
	Capability *toolchain.Capability
	// Spawner runs compiler version probes and git. Defaults to proc.OS.
	Spawner proc.Spawner
	// Jobs bounds concurrent fetches and discovery walks.
	Jobs int
	// Bin overrides the artifact path of Build and Run plans.
	Bin string
	// TargetDir overrides <project>/target.
	TargetDir string
	// Rebuild disables the stamp check.
	Rebuild bool
}

func (o *Options) spawner() proc.Spawner {
	if o.Spawner == nil {
		return proc.OS{}
	}
	return o.Spawner
}

// Project is a loaded manifest with its resolved dependency graph.
type Project struct {
	Manifest *manifest.Manifest
	Graph    *modules.Graph
}

// Result is everything ResolveAndPlan computed.
type Result struct {
	Project
	Groups     []discover.Group
	Capability *toolchain.Capability
	Plan       *plan.Plan
	Stamps     *build.Stamps // Nil for Test plans and rebuilds
}

// LoadManifest loads the manifest at path, which may name the manifest
// file or the directory holding it.
func LoadManifest(path string) (*manifest.Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		if path, err = manifest.Find(path); err != nil {
			return nil, err
		}
	}
	return manifest.Load(path)
}

// Resolve loads the manifest at path and resolves its dependencies.
func Resolve(ctx context.Context, path string, opts Options) (*Project, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = &cacheFetcher{update: opts.Update, spawner: opts.spawner()}
	}
	g, err := modules.Load(ctx, m, modules.Options{Fetcher: fetcher, Concurrency: opts.Jobs})
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("resolved", "project", m.Name, "modules", len(g.Modules))
	return &Project{Manifest: m, Graph: g}, nil
}

// ResolveAndPlan loads the manifest at path, resolves and discovers every
// module and plans mode. Nothing is spawned except version probes.
func ResolveAndPlan(ctx context.Context, path string, mode plan.Mode, opts Options) (*Result, error) {
	proj, err := Resolve(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	groups, err := discover.All(ctx, proj.Graph, opts.Jobs)
	if err != nil {
		return nil, err
	}
	r := &Result{Project: *proj, Groups: groups, Capability: opts.Capability}
	if r.Capability == nil {
		r.Capability = toolchain.Probe(ctx, toolchain.Options{Spawner: opts.spawner()})
	}

	targetDir := opts.TargetDir
	if targetDir == "" {
		targetDir = filepath.Join(proj.Manifest.Dir, "target")
	}
	popts := plan.Options{Bin: opts.Bin, TargetDir: targetDir}
	if mode != plan.Test && !opts.Rebuild {
		r.Stamps = build.OpenStamps(targetDir)
		popts.Stamps = r.Stamps
	}
	if r.Plan, err = plan.New(proj.Graph, groups, r.Capability, mode, popts); err != nil {
		return nil, err
	}
	return r, nil
}

// Execute runs the plan of r.
func Execute(ctx context.Context, r *Result, opts build.Options) (int, error) {
	if opts.Stamps == nil {
		opts.Stamps = r.Stamps
	}
	return build.NewBuilder(opts).Execute(ctx, r.Plan)
}

// Emit renders p as a build script in format.
func Emit(p *plan.Plan, format string) ([]byte, error) {
	return emit.Emit(p, format)
}

// cacheFetcher creates the default git fetcher when a git dependency is
// first met, so projects with local dependencies only never touch the
// cache directory.
type cacheFetcher struct {
	update  bool
	spawner proc.Spawner

	once sync.Once
	f    *vcs.GitFetcher
	err  error
}

func (c *cacheFetcher) Fetch(ctx context.Context, src module.Source) (string, error) {
	c.once.Do(func() {
		root, err := env.SourceDir()
		if err != nil {
			c.err = fmt.Errorf("source cache: %w", err)
			return
		}
		c.f = vcs.NewGitFetcher(root, vcs.WithSpawner(c.spawner))
		c.f.Update = c.update
	})
	if c.err != nil {
		return "", c.err
	}
	return c.f.Fetch(ctx, src)
}
