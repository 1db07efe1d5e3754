package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File mirrors the command line options in a YAML configuration file.
// Unset keys leave the flag defaults untouched.
type File struct {
	Output             *string        `yaml:"output"`
	CSV                *bool          `yaml:"csv"`
	Interval           *time.Duration `yaml:"interval"`
	Timeout            *time.Duration `yaml:"timeout"`
	Privileged         *bool          `yaml:"privileged"`
	PayloadSize        *int           `yaml:"payload_size"`
	ResolveConcurrency *int           `yaml:"resolve_concurrency"`
	IPInfoToken        *string        `yaml:"ipinfo_token"`
	IPInfoURL          *string        `yaml:"ipinfo_url"`
	Cities             *string        `yaml:"cities"`
	Origin             *FileOrigin    `yaml:"origin"`
	PlotDir            *string        `yaml:"plot_dir"`
	MetricsFile        *string        `yaml:"metrics_file"`
	MetricsListen      *string        `yaml:"metrics_listen"`
	Log                *string        `yaml:"log"`
	LogLevel           *string        `yaml:"log_level"`
	LogFormat          *string        `yaml:"log_format"`
}

// FileOrigin is the origin section of the configuration file.
type FileOrigin struct {
	Lat *float64 `yaml:"lat"`
	Lon *float64 `yaml:"lon"`
}

// LoadFile parses the YAML configuration file at path
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return &f, nil
}

// apply copies the values set in the file into args, skipping every option
// for which changed reports that it was given on the command line.
func (f *File) apply(args *Args, changed func(name string) bool) {
	set := func(name string, fn func()) {
		if !changed(name) {
			fn()
		}
	}

	if f.Output != nil {
		set("output", func() { args.Output = *f.Output })
	}
	if f.CSV != nil {
		set("csv", func() { args.CSV = *f.CSV })
	}
	if f.Interval != nil {
		set("interval", func() { args.Interval = *f.Interval })
	}
	if f.Timeout != nil {
		set("timeout", func() { args.Timeout = *f.Timeout })
	}
	if f.Privileged != nil {
		set("privileged", func() { args.Privileged = *f.Privileged })
	}
	if f.PayloadSize != nil {
		set("payload-size", func() { args.PayloadSize = *f.PayloadSize })
	}
	if f.ResolveConcurrency != nil {
		set("resolve-concurrency", func() { args.ResolveConcurrency = *f.ResolveConcurrency })
	}
	if f.IPInfoToken != nil {
		set("ipinfo-token", func() { args.IPInfoToken = *f.IPInfoToken })
	}
	if f.IPInfoURL != nil {
		set("ipinfo-url", func() { args.IPInfoURL = *f.IPInfoURL })
	}
	if f.Cities != nil {
		set("cities", func() { args.Cities = *f.Cities })
	}
	if f.Origin != nil && f.Origin.Lat != nil {
		set("origin-lat", func() { args.OriginLat = *f.Origin.Lat })
	}
	if f.Origin != nil && f.Origin.Lon != nil {
		set("origin-lon", func() { args.OriginLon = *f.Origin.Lon })
	}
	if f.PlotDir != nil {
		set("plot-dir", func() { args.PlotDir = *f.PlotDir })
	}
	if f.MetricsFile != nil {
		set("metrics-file", func() { args.MetricsFile = *f.MetricsFile })
	}
	if f.MetricsListen != nil {
		set("metrics-listen", func() { args.MetricsListen = *f.MetricsListen })
	}
	if f.Log != nil {
		set("log", func() { args.Log = *f.Log })
	}
	if f.LogLevel != nil {
		set("log-level", func() { args.LogLevel = *f.LogLevel })
	}
	if f.LogFormat != nil {
		set("log-format", func() { args.LogFormat = *f.LogFormat })
	}
}
