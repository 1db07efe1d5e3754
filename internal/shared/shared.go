package shared

import (
	"strconv"
)

// Record is anything the output writers can emit as a CSV row.
type Record interface {
	Header() []string
	Row() []string
}

// Site is one input row of the resolve stage (name,url CSV)
type Site struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ResolvedSite is a site with the first address its host resolved to
type ResolvedSite struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	IP   string `json:"ip"`
}

// Target is a geolocated address handed to the prober.
type Target struct {
	IP       string `json:"ip"`
	Location string `json:"location"`
}

// Measurement is a successful probe of a Target. Time is the round-trip
// time in seconds.
type Measurement struct {
	IP       string  `json:"ip"`
	Location string  `json:"location"`
	Time     float64 `json:"time"`
}

// MeasuredDistance adds the great-circle distance (km) between the
// measurement's location and the configured origin.
type MeasuredDistance struct {
	IP       string  `json:"ip"`
	Location string  `json:"location"`
	Time     float64 `json:"time"`
	Distance float64 `json:"distance"`
}

// NewMeasurement copies address and label verbatim from t.
func NewMeasurement(t Target, rttSeconds float64) Measurement {
	return Measurement{IP: t.IP, Location: t.Location, Time: rttSeconds}
}

func (s ResolvedSite) Header() []string { return []string{"name", "url", "ip"} }
func (s ResolvedSite) Row() []string    { return []string{s.Name, s.URL, s.IP} }

func (t Target) Header() []string { return []string{"ip", "location"} }
func (t Target) Row() []string    { return []string{t.IP, t.Location} }

func (m Measurement) Header() []string { return []string{"ip", "location", "time"} }
func (m Measurement) Row() []string {
	return []string{m.IP, m.Location, formatFloat(m.Time)}
}

func (d MeasuredDistance) Header() []string { return []string{"ip", "location", "time", "distance"} }
func (d MeasuredDistance) Row() []string {
	return []string{d.IP, d.Location, formatFloat(d.Time), formatFloat(d.Distance)}
}

// Records converts a typed slice for the output writers.
func Records[T Record](in []T) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
