// Package geo annotates measurements with their great-circle distance from
// an origin.
package geo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/tkjaer/geoping/internal/shared"
)

// EarthRadiusKm is the mean Earth radius (IUGG).
const EarthRadiusKm = 6371.0088

// DefaultOrigin is Cologne, Germany.
var DefaultOrigin = Point{Lat: 50.9375, Lon: 6.9603}

// Point is a position in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Validate checks the coordinate ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Lon)
	}
	return nil
}

// Distance returns the haversine distance between a and b in kilometres.
func Distance(a, b Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Cities maps a city name to its position.
type Cities map[string]Point

// LoadCities reads a city,latitude,longitude CSV file with header.
func LoadCities(path string) (Cities, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cities, err := ReadCities(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cities, nil
}

// ReadCities parses city records. When a name appears more than once the
// first entry wins.
func ReadCities(r io.Reader) (Cities, error) {
	rdr := csv.NewReader(r)
	rdr.TrimLeadingSpace = true

	header, err := rdr.Read()
	if errors.Is(err, io.EOF) {
		return Cities{}, nil
	}
	if err != nil {
		return nil, err
	}
	want := []string{"city", "latitude", "longitude"}
	for i, name := range want {
		if i >= len(header) || !strings.EqualFold(strings.TrimSpace(header[i]), name) {
			return nil, fmt.Errorf("unexpected header %v, want %v", header, want)
		}
	}

	cities := make(Cities)
	for {
		rec, err := rdr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := rdr.FieldPos(0)
		lat, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", line, err)
		}
		lon, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", line, err)
		}
		p := Point{Lat: lat, Lon: lon}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, dup := cities[rec[0]]; !dup {
			cities[rec[0]] = p
		}
	}
	return cities, nil
}

// Annotate adds the distance from origin to every measurement whose
// location is a known city. Measurements for unknown cities are dropped.
func Annotate(measurements []shared.Measurement, cities Cities, origin Point) []shared.MeasuredDistance {
	out := make([]shared.MeasuredDistance, 0, len(measurements))
	for _, m := range measurements {
		city, ok := cities[m.Location]
		if !ok {
			slog.Debug("Unknown city, dropping measurement", "ip", m.IP, "location", m.Location)
			continue
		}
		out = append(out, shared.MeasuredDistance{
			IP:       m.IP,
			Location: m.Location,
			Time:     m.Time,
			Distance: Distance(city, origin),
		})
	}
	slog.Info("Distances calculated", "measurements", len(measurements), "annotated", len(out))
	return out
}
