// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package discover

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/goplus/cpkg/internal/modules"
	"github.com/goplus/cpkg/internal/par"
)

// Group holds the units of one module.
type Group struct {
	Module   *modules.Module
	Includes []string // IncludeDirs(Module)
	Units    []Unit
}

// All discovers the units of every module of g, walking up to jobs modules
// at a time. Groups are returned in the order of g.Modules.
func All(ctx context.Context, g *modules.Graph, jobs int) ([]Group, error) {
	if jobs < 1 {
		jobs = runtime.NumCPU()
	}
	var (
		mu     sync.Mutex
		groups = make(map[*modules.Module]Group, len(g.Modules))
		work   par.Work[*modules.Module]
	)
	for _, m := range g.Modules {
		work.Add(m)
	}
	err := work.Do(ctx, jobs, func(ctx context.Context, m *modules.Module) error {
		grp := Group{Module: m, Includes: IncludeDirs(m)}
		for u, err := range Units(ctx, m) {
			if err != nil {
				return fmt.Errorf("discover %s: %w", m.Alias, err)
			}
			grp.Units = append(grp.Units, u)
		}
		mu.Lock()
		groups[m] = grp
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Group, 0, len(g.Modules))
	for _, m := range g.Modules {
		out = append(out, groups[m])
	}
	return out, nil
}
