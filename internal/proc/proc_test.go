// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestOSSpawn(t *testing.T) {
	requireSh(t)
	tests := []struct {
		name       string
		script     string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{"success", "echo out", 0, "out\n", ""},
		{"exit code", "echo oops >&2; exit 3", 3, "", "oops\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := OS{}.Spawn(context.Background(), Command{Name: "sh", Args: []string{"-c", tt.script}})
			if err != nil {
				t.Fatalf("Spawn() error = %v", err)
			}
			if res.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantCode)
			}
			if string(res.Stdout) != tt.wantStdout {
				t.Errorf("Stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
			if string(res.Stderr) != tt.wantStderr {
				t.Errorf("Stderr = %q, want %q", res.Stderr, tt.wantStderr)
			}
		})
	}
}

func TestOSSpawnNotFound(t *testing.T) {
	_, err := OS{}.Spawn(context.Background(), Command{Name: "cpkg-no-such-binary"})
	if err == nil {
		t.Fatal("Spawn() error = nil, want not found")
	}
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "cc", Args: []string{"-c", "main.c"}}
	if got := c.String(); !strings.HasPrefix(got, "cc -c") {
		t.Errorf("String() = %q", got)
	}
}
