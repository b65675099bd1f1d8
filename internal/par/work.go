// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package par implements a bounded parallel work set.
package par

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
)

// Work manages a set of work items to be executed in parallel, at most once each.
// The items in the set must all be valid map keys.
type Work[T comparable] struct {
	f       func(context.Context, T) error
	running int // total number of runners

	mu      sync.Mutex
	added   map[T]int // items added to set, with their insertion index
	todo    []T       // items yet to be run
	errs    []error   // errs[i] is the result of the i'th added item
	wait    sync.Cond // wait when todo is empty
	waiting int       // number of runners waiting for todo
}

// Add adds item to the work set, if it hasn't already been added.
func (w *Work[T]) Add(item T) {
	w.mu.Lock()
	if w.added == nil {
		w.added = make(map[T]int)
	}
	if _, ok := w.added[item]; !ok {
		w.added[item] = len(w.errs)
		w.errs = append(w.errs, nil)
		w.todo = append(w.todo, item)
		if w.waiting > 0 {
			w.wait.Signal()
		}
	}
	w.mu.Unlock()
}

// Do runs f in parallel on items from the work set, with at most n
// invocations of f running at a time. f may add new items to the set.
// Do returns when everything added has been processed, with the errors of
// the failed items joined in the order the items were added. Once ctx is
// done, remaining items are not started and fail with ctx.Err().
// Do should only be used once on a given Work.
func (w *Work[T]) Do(ctx context.Context, n int, f func(ctx context.Context, item T) error) error {
	if n < 1 {
		panic("par.Work.Do: n < 1")
	}
	if w.running >= 1 {
		panic("par.Work.Do: already called Do")
	}

	w.running = n
	w.f = f
	w.wait.L = &w.mu

	var wg sync.WaitGroup
	for i := 0; i < n-1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runner(ctx)
		}()
	}
	w.runner(ctx)
	wg.Wait()
	return errors.Join(w.errs...)
}

// runner executes work in w until both nothing is left to do
// and all the runners are waiting for work.
func (w *Work[T]) runner(ctx context.Context) {
	for {
		w.mu.Lock()
		for len(w.todo) == 0 {
			w.waiting++
			if w.waiting == w.running {
				w.wait.Broadcast()
				w.mu.Unlock()
				return
			}
			w.wait.Wait()
			w.waiting--
		}

		// Pick at random to spread contention between items added together.
		i := rand.IntN(len(w.todo))
		item := w.todo[i]
		w.todo[i] = w.todo[len(w.todo)-1]
		w.todo = w.todo[:len(w.todo)-1]
		w.mu.Unlock()

		err := ctx.Err()
		if err == nil {
			err = w.f(ctx, item)
		}

		w.mu.Lock()
		w.errs[w.added[item]] = err
		w.mu.Unlock()
	}
}
