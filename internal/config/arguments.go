package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/tkjaer/geoping/internal/geo"
	"github.com/tkjaer/geoping/internal/probe"
	"github.com/tkjaer/geoping/internal/resolve"
	"github.com/tkjaer/geoping/internal/version"
)

// Commands
const (
	CommandResolve   = "resolve"
	CommandGeolocate = "geolocate"
	CommandPing      = "ping"
	CommandDistance  = "distance"
	CommandPlot      = "plot"
)

const maxPayloadSize = 65507 // largest ICMP payload in an IPv4 datagram

type Args struct {
	Command string
	Input   string

	// Output
	Output string // output file, empty means stdout
	CSV    bool   // write CSV instead of JSON

	// Probing
	Interval    time.Duration
	Timeout     time.Duration
	Privileged  bool
	PayloadSize int

	// Resolving
	ResolveConcurrency int

	// Geolocation
	IPInfoToken string // falls back to the IPINFO environment variable
	IPInfoURL   string

	// Distance
	Cities    string
	OriginLat float64
	OriginLon float64

	// Plotting
	PlotDir string

	// Metrics
	MetricsFile   string // Prometheus textfile written after the run
	MetricsListen string // address serving /metrics during the run

	ConfigFile string

	// Logging
	Log       string // log file path, empty means stderr only
	LogLevel  string // log level: debug, info, warn, error
	LogFormat string // log format: text, json, auto
}

func ParseArgs() (Args, error) {
	var args Args
	var showVersion bool

	// Set custom usage message
	flag.Usage = func() {
		println("geoping - latency versus distance")
		println()
		println("Resolves sites, probes their addresses with ICMP echo and relates the")
		println("round-trip times to the great-circle distance of each location.")
		println()
		println("Usage:")
		println("  geoping [OPTIONS] COMMAND INPUT")
		println()
		println("Commands:")
		println("  resolve    INPUT is a name,url CSV; writes name,url,ip records")
		println("  geolocate  INPUT is the output of resolve; writes ip,location records (ipinfo.io)")
		println("  ping       INPUT is a JSON array of ip,location; writes ip,location,time records")
		println("  distance   INPUT is the output of ping; writes records with distance in km")
		println("  plot       INPUT is the output of distance; writes SVG scatter plots")
		println()
		println("Examples:")
		println("  geoping resolve data.csv -o with_ips.json")
		println("  IPINFO=token geoping geolocate with_ips.json -o with_geolocations.json")
		println("  geoping ping with_geolocations.json -o with_times.json")
		println("  geoping --privileged=false -i 10ms ping with_geolocations.json")
		println("  geoping --cities cities.csv distance with_times.json --csv")
		println("  geoping --plot-dir plots plot with_distances.json")
		println()
		println("Options:")
		flag.PrintDefaults()
		println()
		println("Documentation: https://github.com/tkjaer/geoping")
	}

	flag.BoolVarP(&showVersion, "version", "v", false, "Show version information")
	flag.StringVarP(&args.Output, "output", "o", "", "Write results to file (default: stdout)")
	flag.BoolVar(&args.CSV, "csv", false, "Write CSV instead of JSON")

	flag.DurationVarP(&args.Interval, "interval", "i", probe.DefaultInterval, "Minimum delay between probe launches")
	flag.DurationVarP(&args.Timeout, "timeout", "t", probe.DefaultTimeout, "Echo reply timeout")
	flag.BoolVar(&args.Privileged, "privileged", true, "Use raw ICMP sockets (false: unprivileged datagram sockets)")
	flag.IntVar(&args.PayloadSize, "payload-size", probe.DefaultPayloadSize, "Echo request payload size in bytes")

	flag.IntVar(&args.ResolveConcurrency, "resolve-concurrency", resolve.DefaultConcurrency, "Maximum concurrent DNS lookups")

	flag.StringVar(&args.IPInfoToken, "ipinfo-token", "", "ipinfo.io API token (default: $"+geo.IPInfoTokenEnv+")")
	flag.StringVar(&args.IPInfoURL, "ipinfo-url", geo.DefaultIPInfoURL, "ipinfo.io API base URL")

	flag.StringVar(&args.Cities, "cities", "", "City coordinates CSV (city,latitude,longitude)")
	flag.Float64Var(&args.OriginLat, "origin-lat", geo.DefaultOrigin.Lat, "Latitude distances are measured from")
	flag.Float64Var(&args.OriginLon, "origin-lon", geo.DefaultOrigin.Lon, "Longitude distances are measured from")

	flag.StringVar(&args.PlotDir, "plot-dir", ".", "Directory the plot command writes SVG files to")

	flag.StringVar(&args.MetricsFile, "metrics-file", "", "Write Prometheus metrics to file after the run")
	flag.StringVar(&args.MetricsListen, "metrics-listen", "", "Serve Prometheus metrics on address during the run (e.g. :9115)")

	flag.StringVarP(&args.ConfigFile, "config", "c", "", "YAML configuration file (command line flags take precedence)")
	flag.StringVarP(&args.Log, "log", "l", "", "Diagnostic log file (in addition to stderr)")
	flag.StringVar(&args.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&args.LogFormat, "log-format", "auto", "Log format: text, json or auto (text on a terminal)")
	flag.Parse()

	// Handle version flag
	if showVersion {
		fmt.Println(version.FullVersion())
		os.Exit(0)
	}

	if args.ConfigFile != "" {
		fc, err := LoadFile(args.ConfigFile)
		if err != nil {
			return args, err
		}
		fc.apply(&args, flag.CommandLine.Changed)
	}

	if args.IPInfoToken == "" {
		args.IPInfoToken = os.Getenv(geo.IPInfoTokenEnv)
	}

	args.Command = flag.Arg(0)
	args.Input = flag.Arg(1)

	if err := args.validate(); err != nil {
		return args, err
	}
	return args, nil
}

func (a Args) validate() error {
	switch a.Command {
	case "":
		return errors.New("command is required")
	case CommandResolve, CommandGeolocate, CommandPing, CommandDistance, CommandPlot:
	default:
		return fmt.Errorf("unknown command %q", a.Command)
	}

	switch {
	case a.Input == "":
		return errors.New("input file is required")
	case a.Interval < 0:
		return errors.New("interval must not be negative")
	case a.Timeout <= 0:
		return errors.New("timeout must be positive")
	case a.PayloadSize < 12 || a.PayloadSize > maxPayloadSize:
		return fmt.Errorf("payload size must be between 12 and %d", maxPayloadSize)
	case a.ResolveConcurrency < 1:
		return errors.New("resolve concurrency must be at least 1")
	case a.Command == CommandGeolocate && a.IPInfoToken == "":
		return fmt.Errorf("--ipinfo-token or $%s is required for geolocate", geo.IPInfoTokenEnv)
	case a.Command == CommandDistance && a.Cities == "":
		return errors.New("--cities is required for distance")
	case a.Command == CommandPlot && a.PlotDir == "":
		return errors.New("--plot-dir must not be empty")
	case a.LogFormat != "text" && a.LogFormat != "json" && a.LogFormat != "auto":
		return errors.New("log format must be one of 'text', 'json' or 'auto'")
	}

	if err := a.Origin().Validate(); err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	return nil
}

// Origin returns the configured distance origin
func (a Args) Origin() geo.Point {
	return geo.Point{Lat: a.OriginLat, Lon: a.OriginLon}
}
