package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tkjaer/geoping/internal/shared"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadTargets(t *testing.T) {
	path := writeFile(t, "with_geolocations.json", `[
  {"ip": "203.0.113.1", "location": "CityA"},
  {"ip": "bad-address", "location": "CityB"},
  {"ip": "2001:db8::1", "location": "CityC", "extra": true}
]`)

	got, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("LoadTargets() error = %v", err)
	}
	want := []shared.Target{
		{IP: "203.0.113.1", Location: "CityA"},
		{IP: "bad-address", Location: "CityB"},
		{IP: "2001:db8::1", Location: "CityC"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadTargets() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMeasurements(t *testing.T) {
	path := writeFile(t, "with_times.json", `[{"ip": "203.0.113.1", "location": "CityA", "time": 0.012}]`)

	got, err := LoadMeasurements(path)
	if err != nil {
		t.Fatalf("LoadMeasurements() error = %v", err)
	}
	want := []shared.Measurement{{IP: "203.0.113.1", Location: "CityA", Time: 0.012}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadMeasurements() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadResolvedSites(t *testing.T) {
	path := writeFile(t, "with_ips.json", `[{"name": "Example", "url": "https://example.com/", "ip": "192.0.2.1"}]`)

	got, err := LoadResolvedSites(path)
	if err != nil {
		t.Fatalf("LoadResolvedSites() error = %v", err)
	}
	want := []shared.ResolvedSite{{Name: "Example", URL: "https://example.com/", IP: "192.0.2.1"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadResolvedSites() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDistances(t *testing.T) {
	path := writeFile(t, "with_distances.json", `[{"ip": "203.0.113.1", "location": "CityA", "time": 0.012, "distance": 477.5}]`)

	got, err := LoadDistances(path)
	if err != nil {
		t.Fatalf("LoadDistances() error = %v", err)
	}
	want := []shared.MeasuredDistance{{IP: "203.0.113.1", Location: "CityA", Time: 0.012, Distance: 477.5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadDistances() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.json")},
		{"not an array", writeFile(t, "object.json", `{"ip": "203.0.113.1"}`)},
		{"truncated", writeFile(t, "truncated.json", `[{"ip": `)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadJSON[shared.Target](tt.path); err == nil {
				t.Error("LoadJSON() error = nil, want error")
			}
		})
	}
}

func TestReadSites(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []shared.Site
		wantErr bool
	}{
		{
			name:  "plain",
			input: "name,url\nExample,https://example.com/\nOther,other.org\n",
			want: []shared.Site{
				{Name: "Example", URL: "https://example.com/"},
				{Name: "Other", URL: "other.org"},
			},
		},
		{
			name:  "reordered and extra columns",
			input: "rank,URL,Name\n1,example.com,Example\n",
			want:  []shared.Site{{Name: "Example", URL: "example.com"}},
		},
		{
			name:  "quoted name",
			input: "name,url\n\"Example, Inc.\",example.com\n",
			want:  []shared.Site{{Name: "Example, Inc.", URL: "example.com"}},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
		{
			name:    "missing url column",
			input:   "name,link\nExample,example.com\n",
			wantErr: true,
		},
		{
			name:    "short record",
			input:   "name,url\nExample\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadSites(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadSites() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ReadSites() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadSites(t *testing.T) {
	path := writeFile(t, "data.csv", "name,url\nExample,example.com\n")
	got, err := LoadSites(path)
	if err != nil {
		t.Fatalf("LoadSites() error = %v", err)
	}
	if len(got) != 1 || got[0].URL != "example.com" {
		t.Errorf("LoadSites() = %+v", got)
	}

	if _, err := LoadSites(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("LoadSites() on missing file error = nil, want error")
	}
}
