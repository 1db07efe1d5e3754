// Package dataset reads the input files of the pipeline stages.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tkjaer/geoping/internal/shared"
)

// LoadJSON reads a JSON array of T from path.
func LoadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// LoadTargets reads the geolocated addresses to probe.
func LoadTargets(path string) ([]shared.Target, error) {
	return LoadJSON[shared.Target](path)
}

// LoadMeasurements reads the output of a previous probe run.
func LoadMeasurements(path string) ([]shared.Measurement, error) {
	return LoadJSON[shared.Measurement](path)
}

// LoadResolvedSites reads the output of the resolve stage.
func LoadResolvedSites(path string) ([]shared.ResolvedSite, error) {
	return LoadJSON[shared.ResolvedSite](path)
}

// LoadDistances reads the output of the distance stage.
func LoadDistances(path string) ([]shared.MeasuredDistance, error) {
	return LoadJSON[shared.MeasuredDistance](path)
}

// LoadSites reads a CSV file with a header containing name and url columns.
func LoadSites(path string) ([]shared.Site, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sites, err := ReadSites(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return sites, nil
}

// ReadSites parses name,url CSV records. Columns are located by header name,
// extra columns are ignored.
func ReadSites(r io.Reader) ([]shared.Site, error) {
	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true

	header, err := rdr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cols, err := columns(header, "name", "url")
	if err != nil {
		return nil, err
	}

	var sites []shared.Site
	for {
		rec, err := rdr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) <= cols["name"] || len(rec) <= cols["url"] {
			line, _ := rdr.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected at least %d fields, got %d", line, len(header), len(rec))
		}
		sites = append(sites, shared.Site{Name: rec[cols["name"]], URL: rec[cols["url"]]})
	}
	return sites, nil
}

// columns maps each required column name to its index in header.
func columns(header []string, names ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	out := make(map[string]int, len(names))
	for _, n := range names {
		i, ok := idx[n]
		if !ok {
			return nil, fmt.Errorf("missing column %q in header %v", n, header)
		}
		out[n] = i
	}
	return out, nil
}
