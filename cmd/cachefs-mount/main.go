// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

// cachefs-mount mounts a caching overlay filesystem: a read-only
// passthrough view of a backing directory tree, with one configured
// subtree served read-write against a local cache and propagated
// back to the backing store asynchronously after each file is
// closed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/cachefs-io/cachefs/lib/cachefs/config"
	"github.com/cachefs-io/cachefs/lib/cachefs/mount"
	"github.com/cachefs-io/cachefs/lib/process"
	"github.com/cachefs-io/cachefs/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		backing     string
		cache       string
		rw          string
		configPath  string
		logLevel    string
		allowOther  bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("cachefs-mount", pflag.ContinueOnError)
	flagSet.StringVar(&backing, "backing", "", "read-only backing directory tree (required)")
	flagSet.StringVar(&cache, "cache", "", "cache directory for materialized copies (required)")
	flagSet.StringVar(&rw, "rw", "", "subtree of --backing to serve read-write (required)")
	flagSet.StringVar(&configPath, "config", "", "optional YAML file for log-level/allow-other/foreground settings")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error (overrides --config)")
	flagSet.BoolVar(&allowOther, "allow-other", false, "allow other users to access the mount (overrides --config)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Println("cachefs-mount", version.Info())
		return nil
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) != 1 {
		printHelp(flagSet)
		return fmt.Errorf("expected exactly one positional argument: the mountpoint")
	}
	mountpoint := args[0]

	if backing == "" || cache == "" || rw == "" {
		return fmt.Errorf("--backing, --cache, and --rw are all required")
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flagSet.Changed("allow-other") {
		cfg.AllowOther = allowOther
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, disp, err := mount.Mount(mount.Options{
		Mountpoint: mountpoint,
		Backing:    backing,
		Cache:      cache,
		RW:         rw,
		AllowOther: cfg.AllowOther,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("mounting: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	// Flush pending background writes before the mount goes away, so
	// the backing store always reflects every release that returned
	// successfully to its caller.
	disp.Shutdown()

	if err := server.Unmount(); err != nil {
		logger.Error("unmount failed", "error", err)
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `cachefs-mount — caching overlay FUSE filesystem.

Mounts a read-only passthrough view of --backing at the given
mountpoint, with the subtree named by --rw served read-write against
--cache and propagated back to --backing asynchronously as each
written file is closed.

Usage:
  cachefs-mount --backing DIR --cache DIR --rw DIR MOUNTPOINT

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
