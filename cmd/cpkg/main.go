// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cpkg builds, runs and tests C and C++ projects described by a
// cpkg.toml or cpkg.yaml manifest.
package main

import "github.com/goplus/cpkg/cmd/cpkg/internal"

func main() {
	internal.Execute()
}
