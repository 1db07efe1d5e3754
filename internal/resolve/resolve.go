// Package resolve maps site URLs to the first address their host resolves to.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/tkjaer/geoping/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultConcurrency bounds the number of lookups in flight.
const DefaultConcurrency = 16

// ErrNoAddress means the host resolved without any address.
var ErrNoAddress = errors.New("no address for host")

// Resolver handles host lookups with simple caching
type Resolver struct {
	mu    sync.Mutex
	cache map[string]string
	group singleflight.Group

	lookupFunc func(ctx context.Context, host string) ([]string, error)
	retries    int
	retryDelay time.Duration
}

// NewResolver creates a Resolver using the system resolver
func NewResolver() *Resolver {
	return &Resolver{
		cache:      make(map[string]string),
		lookupFunc: net.DefaultResolver.LookupHost,
		retries:    3,
		retryDelay: 100 * time.Millisecond,
	}
}

// hostFromURL strips the scheme and any path from a site URL.
func hostFromURL(url string) string {
	host := strings.TrimSpace(url)
	for _, scheme := range []string{"http://", "https://"} {
		if len(host) >= len(scheme) && strings.EqualFold(host[:len(scheme)], scheme) {
			host = host[len(scheme):]
			break
		}
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}

// Lookup returns the first address of host. Successful results are cached
// and concurrent lookups of the same host share one query.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	r.mu.Lock()
	ip, ok := r.cache[host]
	r.mu.Unlock()
	if ok {
		return ip, nil
	}

	v, err, _ := r.group.Do(host, func() (any, error) {
		ip, err := r.lookup(ctx, host)
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.cache[host] = ip
		r.mu.Unlock()
		return ip, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) lookup(ctx context.Context, host string) (string, error) {
	var err error
	attempts := max(r.retries, 1)
	for i := range attempts {
		var addrs []string
		addrs, err = r.lookupFunc(ctx, host)
		if err == nil && len(addrs) > 0 {
			return addrs[0], nil
		}
		if err == nil {
			err = ErrNoAddress
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			break
		}
		if i+1 < attempts {
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("lookup %s: %w", host, err)
}

// ResolveAll looks up every site with at most concurrency lookups in flight.
// Sites that fail to resolve are logged and dropped; the rest keep their
// input order. An error is returned only when ctx is cancelled.
func (r *Resolver) ResolveAll(ctx context.Context, sites []shared.Site, concurrency int) ([]shared.ResolvedSite, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	resolved := make([]*shared.ResolvedSite, len(sites))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, site := range sites {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			host := hostFromURL(site.URL)
			ip, err := r.Lookup(ctx, host)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("Lookup failed", "name", site.Name, "host", host, "error", err)
				return nil
			}
			slog.Debug("Lookup done", "index", i+1, "total", len(sites), "host", host, "ip", ip)
			resolved[i] = &shared.ResolvedSite{Name: site.Name, URL: site.URL, IP: ip}
			return nil
		})
	}
	err := g.Wait()

	out := make([]shared.ResolvedSite, 0, len(sites))
	for _, rs := range resolved {
		if rs != nil {
			out = append(out, *rs)
		}
	}
	slog.Info("Resolve complete", "sites", len(sites), "resolved", len(out))
	return out, err
}
