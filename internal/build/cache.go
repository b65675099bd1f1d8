// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/goplus/cpkg/internal/discover"
)

// Target directory layout:
//
//	target/
//	  obj/
//	    .cache.json          # stamp cache: object and artifact stamps
//	    <alias>/<rel>.o
//	  test/<name>
//	  <name>                 # Build/Run artifact unless bin is set
const cacheFile = ".cache.json"

// stampEntry records what an object was compiled from.
type stampEntry struct {
	ModTime   time.Time   `json:"mtime"`
	Size      int64       `json:"size"`
	Args      []string    `json:"args"`
	Headers   headerStamp `json:"headers"`
	BuildTime time.Time   `json:"build_time"`
}

// headerStamp summarizes the headers a compile could include: how many
// there are and the newest modification time among them.
type headerStamp struct {
	Count  int       `json:"count"`
	Newest time.Time `json:"newest"`
}

func (h headerStamp) equal(o headerStamp) bool {
	return h.Count == o.Count && h.Newest.Equal(o.Newest)
}

// linkEntry records the argument list an artifact was last linked with.
type linkEntry struct {
	Args      []string  `json:"args"`
	BuildTime time.Time `json:"build_time"`
}

// stampCache maps object paths to their stamps and artifact paths to their
// link stamps.
type stampCache struct {
	Cache map[string]*stampEntry `json:"cache"`
	Links map[string]*linkEntry  `json:"links,omitempty"`
}

func (c *stampCache) get(object string) (*stampEntry, bool) {
	entry, ok := c.Cache[object]
	return entry, ok
}

func (c *stampCache) set(object string, entry *stampEntry) {
	if c.Cache == nil {
		c.Cache = make(map[string]*stampEntry)
	}
	c.Cache[object] = entry
}

// Stamps is the per-project stamp cache. It implements plan.StampChecker
// and is safe for concurrent use.
type Stamps struct {
	file string

	mu      sync.Mutex
	cache   stampCache
	dirty   bool
	headers map[string]headerStamp // Scanned header directories
}

// OpenStamps opens the stamp cache of the target directory dir. A missing
// or unreadable cache file yields an empty cache.
func OpenStamps(dir string) *Stamps {
	s := &Stamps{file: filepath.Join(dir, "obj", cacheFile)}
	if cache, err := loadStampCache(s.file); err == nil {
		s.cache = *cache
	}
	return s
}

// UpToDate reports whether object was compiled from source, unchanged since,
// with args, and has not been touched to look older than source. Headers
// under headerDirs must be the same set with the same newest mtime as when
// the object was recorded.
func (s *Stamps) UpToDate(source, object string, args, headerDirs []string) bool {
	s.mu.Lock()
	entry, ok := s.cache.get(object)
	s.mu.Unlock()
	if !ok {
		return false
	}
	si, err := os.Stat(source)
	if err != nil || !si.ModTime().Equal(entry.ModTime) || si.Size() != entry.Size {
		return false
	}
	if !slices.Equal(args, entry.Args) {
		return false
	}
	if !s.scanHeaders(headerDirs).equal(entry.Headers) {
		return false
	}
	oi, err := os.Stat(object)
	return err == nil && !oi.ModTime().Before(si.ModTime())
}

// Record stamps object as freshly compiled from source with args.
func (s *Stamps) Record(source, object string, args, headerDirs []string) error {
	si, err := os.Stat(source)
	if err != nil {
		return err
	}
	entry := &stampEntry{
		ModTime:   si.ModTime(),
		Size:      si.Size(),
		Args:      slices.Clone(args),
		Headers:   s.scanHeaders(headerDirs),
		BuildTime: time.Now(),
	}
	s.mu.Lock()
	s.cache.set(object, entry)
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// Linked reports whether output was last linked with args and is not older
// than any of objects.
func (s *Stamps) Linked(output string, args, objects []string) bool {
	s.mu.Lock()
	entry, ok := s.cache.Links[output]
	s.mu.Unlock()
	if !ok || !slices.Equal(args, entry.Args) {
		return false
	}
	oi, err := os.Stat(output)
	if err != nil {
		return false
	}
	for _, obj := range objects {
		info, err := os.Stat(obj)
		if err != nil || info.ModTime().After(oi.ModTime()) {
			return false
		}
	}
	return true
}

// RecordLink stamps output as freshly linked with args.
func (s *Stamps) RecordLink(output string, args []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Links == nil {
		s.cache.Links = make(map[string]*linkEntry)
	}
	s.cache.Links[output] = &linkEntry{Args: slices.Clone(args), BuildTime: time.Now()}
	s.dirty = true
}

// ForgetLink drops the link stamp of output.
func (s *Stamps) ForgetLink(output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache.Links[output]; ok {
		delete(s.cache.Links, output)
		s.dirty = true
	}
}

// scanHeaders walks dirs for headers. Each directory is scanned once until
// the next Save.
func (s *Stamps) scanHeaders(dirs []string) headerStamp {
	var sum headerStamp
	for _, dir := range dirs {
		s.mu.Lock()
		h, ok := s.headers[dir]
		s.mu.Unlock()
		if !ok {
			h = scanHeaderDir(dir)
			s.mu.Lock()
			if s.headers == nil {
				s.headers = make(map[string]headerStamp)
			}
			s.headers[dir] = h
			s.mu.Unlock()
		}
		sum.Count += h.Count
		if h.Newest.After(sum.Newest) {
			sum.Newest = h.Newest
		}
	}
	return sum
}

func scanHeaderDir(dir string) headerStamp {
	var h headerStamp
	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && discover.Ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !discover.IsHeader(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		h.Count++
		if info.ModTime().After(h.Newest) {
			h.Newest = info.ModTime()
		}
		return nil
	})
	return h
}

// Save writes the cache back if anything was recorded since it was opened.
func (s *Stamps) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = nil
	if !s.dirty {
		return nil
	}
	if err := saveStampCache(s.file, &s.cache); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func loadStampCache(path string) (*stampCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache stampCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func saveStampCache(path string, cache *stampCache) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
