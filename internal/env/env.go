// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package env

import (
	"os"
	"path/filepath"
)

// CacheEnv names the environment variable that overrides CacheDir.
const CacheEnv = "CPKG_CACHE"

// CacheDir returns the root of the cpkg cache: $CPKG_CACHE when set, else
// <user cache dir>/.cpkg.
func CacheDir() (string, error) {
	if dir := os.Getenv(CacheEnv); dir != "" {
		return filepath.Abs(dir)
	}
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".cpkg"), nil
}

// SourceDir returns the directory that holds fetched dependency sources,
// creating it when missing.
func SourceDir() (string, error) {
	cache, err := CacheDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(cache, "src")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
