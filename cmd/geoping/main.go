package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/ulid/v2"
	"github.com/tkjaer/geoping/internal/config"
)

func main() {
	args, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logFile, err := config.SetupLogging(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	runID := ulid.Make()
	slog.SetDefault(slog.Default().With("run", runID.String()))
	slog.Debug("Starting geoping",
		"command", args.Command,
		"input", args.Input,
		"interval", args.Interval,
		"timeout", args.Timeout,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Run in a goroutine so we can handle signals
	done := make(chan error)
	go func() {
		done <- run(ctx, args)
	}()

	// Wait for either completion or interrupt
	select {
	case err = <-done:
	case <-sigChan:
		// Stop scheduling, let launched probes finish and write what we have
		slog.Warn("Received interrupt signal, stopping...")
		cancel()
		err = <-done
	}

	if err != nil {
		slog.Error("geoping failed", "command", args.Command, "error", err)
		if logFile != nil {
			logFile.Close()
		}
		os.Exit(1)
	}
	slog.Debug("geoping completed")
}
