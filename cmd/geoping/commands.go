package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tkjaer/geoping/internal/chart"
	"github.com/tkjaer/geoping/internal/config"
	"github.com/tkjaer/geoping/internal/dataset"
	"github.com/tkjaer/geoping/internal/geo"
	"github.com/tkjaer/geoping/internal/metrics"
	"github.com/tkjaer/geoping/internal/output"
	"github.com/tkjaer/geoping/internal/probe"
	"github.com/tkjaer/geoping/internal/resolve"
	"github.com/tkjaer/geoping/internal/shared"
)

// run executes the selected command and writes its records.
func run(ctx context.Context, args config.Args) error {
	var (
		records []shared.Record
		err     error
	)
	switch args.Command {
	case config.CommandResolve:
		records, err = runResolve(ctx, args)
	case config.CommandGeolocate:
		records, err = runGeolocate(ctx, args)
	case config.CommandPing:
		records, err = runPing(ctx, args)
	case config.CommandDistance:
		records, err = runDistance(args)
	case config.CommandPlot:
		// Writes files instead of records
		return runPlot(args)
	default:
		err = fmt.Errorf("unknown command %q", args.Command)
	}
	if err != nil {
		return err
	}
	return writeRecords(args, records)
}

func runResolve(ctx context.Context, args config.Args) ([]shared.Record, error) {
	sites, err := dataset.LoadSites(args.Input)
	if err != nil {
		return nil, err
	}
	resolved, err := resolve.NewResolver().ResolveAll(ctx, sites, args.ResolveConcurrency)
	if errors.Is(err, context.Canceled) {
		slog.Warn("Resolve interrupted, writing partial results", "resolved", len(resolved))
	} else if err != nil {
		return nil, err
	}
	return shared.Records(resolved), nil
}

func runGeolocate(ctx context.Context, args config.Args) ([]shared.Record, error) {
	sites, err := dataset.LoadResolvedSites(args.Input)
	if err != nil {
		return nil, err
	}
	ips := make([]string, len(sites))
	for i, s := range sites {
		ips[i] = s.IP
	}

	client := geo.NewIPInfoClient(args.IPInfoToken, geo.WithIPInfoURL(args.IPInfoURL))
	targets, err := client.Geolocate(ctx, ips)
	if errors.Is(err, context.Canceled) {
		slog.Warn("Geolocation interrupted, writing partial results", "located", len(targets))
	} else if err != nil {
		return nil, err
	}
	return shared.Records(targets), nil
}

func runPing(ctx context.Context, args config.Args) ([]shared.Record, error) {
	targets, err := dataset.LoadTargets(args.Input)
	if err != nil {
		return nil, err
	}

	sessions, closeSessions, err := openSessions(probe.SessionConfig{
		Privileged:  args.Privileged,
		PayloadSize: args.PayloadSize,
	})
	if err != nil {
		return nil, err
	}
	defer closeSessions()

	m := metrics.New()
	if args.MetricsListen != "" {
		srvCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := m.Serve(srvCtx, args.MetricsListen); err != nil {
				slog.Error("Metrics server failed", "addr", args.MetricsListen, "error", err)
			}
		}()
	}

	pm := probe.NewManager(sessions, probe.Config{
		Interval: args.Interval,
		Timeout:  args.Timeout,
	}, probe.WithObserver(m))
	results := pm.Run(ctx, targets)

	if args.MetricsFile != "" {
		if err := m.WriteTextfile(args.MetricsFile); err != nil {
			slog.Error("Failed to write metrics file", "path", args.MetricsFile, "error", err)
		}
	}
	return shared.Records(results), nil
}

// openSessions opens one ICMP session per address family. Failing to open
// either one is fatal for the run.
func openSessions(cfg probe.SessionConfig) (probe.Sessions, func(), error) {
	v4, err := probe.NewICMPSession(probe.V4, cfg)
	if err != nil {
		return probe.Sessions{}, nil, fmt.Errorf("open IPv4 echo session: %w", err)
	}
	v6, err := probe.NewICMPSession(probe.V6, cfg)
	if err != nil {
		v4.Close()
		return probe.Sessions{}, nil, fmt.Errorf("open IPv6 echo session: %w", err)
	}
	closeAll := func() {
		v4.Close()
		v6.Close()
	}
	return probe.Sessions{V4: v4, V6: v6}, closeAll, nil
}

func runDistance(args config.Args) ([]shared.Record, error) {
	measurements, err := dataset.LoadMeasurements(args.Input)
	if err != nil {
		return nil, err
	}
	cities, err := geo.LoadCities(args.Cities)
	if err != nil {
		return nil, err
	}
	return shared.Records(geo.Annotate(measurements, cities, args.Origin())), nil
}

func runPlot(args config.Args) error {
	distances, err := dataset.LoadDistances(args.Input)
	if err != nil {
		return err
	}
	written, err := chart.WriteAll(distances, args.PlotDir)
	if err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	slog.Info("Plots written", "dir", args.PlotDir, "files", len(written))
	return nil
}

// newOutputs builds the output selected by args.
func newOutputs(args config.Args) (*output.OutputManager, error) {
	om := &output.OutputManager{}
	var (
		o   output.Output
		err error
	)
	if args.CSV {
		o, err = output.NewCSVOutput(args.Output)
	} else {
		o, err = output.NewJSONOutput(args.Output)
	}
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	om.Register(o)
	return om, nil
}

func writeRecords(args config.Args, records []shared.Record) error {
	om, err := newOutputs(args)
	if err != nil {
		return err
	}
	if err := om.Write(records); err != nil {
		om.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return om.Close()
}
