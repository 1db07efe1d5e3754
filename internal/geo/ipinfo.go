package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tkjaer/geoping/internal/shared"
)

const (
	// DefaultIPInfoURL is the base URL of the ipinfo.io API.
	DefaultIPInfoURL = "https://ipinfo.io"
	// IPInfoTokenEnv names the environment variable holding the API token.
	IPInfoTokenEnv = "IPINFO"
	// IPInfoBatchSize is the number of addresses sent per batch request.
	IPInfoBatchSize = 500

	ipinfoTimeout = 30 * time.Second
)

// IPInfoOption configures an IPInfoClient.
type IPInfoOption func(*IPInfoClient)

// WithIPInfoURL points the client at a different API endpoint.
func WithIPInfoURL(url string) IPInfoOption {
	return func(c *IPInfoClient) { c.baseURL = url }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) IPInfoOption {
	return func(c *IPInfoClient) { c.http = hc }
}

// WithBatchSize overrides IPInfoBatchSize.
func WithBatchSize(n int) IPInfoOption {
	return func(c *IPInfoClient) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// IPInfoClient looks up the city of addresses with the ipinfo.io batch API.
type IPInfoClient struct {
	baseURL   string
	token     string
	batchSize int
	http      *http.Client
}

// NewIPInfoClient creates a client authenticating with token.
func NewIPInfoClient(token string, opts ...IPInfoOption) *IPInfoClient {
	c := &IPInfoClient{
		baseURL:   DefaultIPInfoURL,
		token:     token,
		batchSize: IPInfoBatchSize,
		http:      &http.Client{Timeout: ipinfoTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ipDetails is the subset of an ipinfo record we use.
type ipDetails struct {
	IP    string `json:"ip"`
	City  string `json:"city"`
	Bogon bool   `json:"bogon"`
}

// Geolocate returns one target per address ipinfo knows a city for, in input
// order. Repeated addresses are looked up once. A failed batch is logged and
// its addresses are dropped; only cancellation of ctx is returned as error,
// together with the targets found so far.
func (c *IPInfoClient) Geolocate(ctx context.Context, ips []string) ([]shared.Target, error) {
	unique := make([]string, 0, len(ips))
	seen := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if _, dup := seen[ip]; dup || ip == "" {
			continue
		}
		seen[ip] = struct{}{}
		unique = append(unique, ip)
	}

	targets := make([]shared.Target, 0, len(unique))
	for start := 0; start < len(unique); start += c.batchSize {
		if err := ctx.Err(); err != nil {
			return targets, err
		}
		batch := unique[start:min(start+c.batchSize, len(unique))]
		slog.Debug("Looking up geolocation batch", "first", start, "size", len(batch))

		details, err := c.lookupBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return targets, ctx.Err()
			}
			slog.Warn("Geolocation batch failed, dropping it", "first", start, "size", len(batch), "error", err)
			continue
		}

		for _, ip := range batch {
			d, ok := details[ip]
			if !ok || d.City == "" {
				slog.Debug("No city for address", "ip", ip, "bogon", d.Bogon)
				continue
			}
			if d.IP == "" {
				d.IP = ip
			}
			targets = append(targets, shared.Target{IP: d.IP, Location: d.City})
		}
	}
	slog.Info("Geolocation complete", "addresses", len(unique), "located", len(targets))
	return targets, nil
}

// lookupBatch posts one batch request. Entries that are not detail objects
// (ipinfo answers some queries with an error string) are skipped.
func (c *IPInfoClient) lookupBatch(ctx context.Context, ips []string) (map[string]ipDetails, error) {
	body, err := json.Marshal(ips)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipinfo batch: %s", resp.Status)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	out := make(map[string]ipDetails, len(raw))
	for key, msg := range raw {
		var d ipDetails
		if err := json.Unmarshal(msg, &d); err != nil {
			slog.Debug("Skipping ipinfo entry", "query", key, "error", err)
			continue
		}
		out[key] = d
	}
	return out, nil
}
