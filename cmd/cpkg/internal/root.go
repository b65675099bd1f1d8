// Copyright 2024 The cpkg Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goplus/cpkg/internal/core"
	"github.com/goplus/cpkg/internal/ctxlog"
	"github.com/goplus/cpkg/internal/proc"
	"github.com/goplus/cpkg/internal/toolchain"
	"github.com/goplus/cpkg/pkgs/manifest"
	"github.com/spf13/cobra"
)

var (
	manifestPath string
	jobs         int
	verbose      bool
	quiet        bool
)

var rootCmd = &cobra.Command{
	Use:   "cpkg",
	Short: "cpkg builds C and C++ projects",
	Long: `cpkg resolves the dependencies of a C or C++ project, discovers its
sources and compiles, links, runs or tests it with the compilers found on
the host.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&manifestPath, "manifest", "m", ".", "Manifest file or project directory")
	flags.IntVarP(&jobs, "jobs", "j", 0, "Number of parallel jobs (default: number of CPUs)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log every step")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Log warnings and errors only")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// exitCode ends the process with a status without printing anything.
type exitCode int

func (e exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	var code exitCode
	if errors.As(err, &code) {
		os.Exit(int(code))
	}
	log.SetFlags(0)
	log.SetPrefix("cpkg: ")
	log.Fatal(err)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return nil
}

// coreOptions returns the options shared by every command that plans.
func coreOptions() core.Options {
	return core.Options{Jobs: jobs}
}

// loadManifest loads the manifest named by --manifest.
func loadManifest() (*manifest.Manifest, error) {
	return core.LoadManifest(manifestPath)
}

// probe inspects the host toolchain.
func probe(ctx context.Context) *toolchain.Capability {
	return toolchain.Probe(ctx, toolchain.Options{Spawner: proc.OS{}})
}
