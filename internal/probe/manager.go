package probe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tkjaer/geoping/internal/shared"
)

// Config holds the tunables of a probe run.
type Config struct {
	Interval time.Duration // minimum delay between launches
	Timeout  time.Duration // per probe reply timeout
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver reports every launch and outcome to o.
func WithObserver(o Observer) Option {
	return func(pm *Manager) { pm.observer = o }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(pm *Manager) { pm.logger = l }
}

// Manager launches one probe per target at a paced rate and collects the
// successful measurements.
type Manager struct {
	sessions Sessions
	pacer    *Pacer
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger
}

// NewManager creates a manager probing through sessions.
func NewManager(sessions Sessions, cfg Config, opts ...Option) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	pm := &Manager{
		sessions: sessions,
		pacer:    NewPacer(cfg.Interval),
		timeout:  cfg.Timeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

// Run probes targets in input order and blocks until every launched probe
// has finished. The result holds successful measurements in completion
// order. Failures are logged and dropped. A target whose address was already
// scheduled earlier in the list is skipped, so result addresses are unique.
//
// Cancelling ctx stops scheduling further targets. Probes already launched
// run to their reply or timeout and their measurements are still returned.
func (pm *Manager) Run(ctx context.Context, targets []shared.Target) []shared.Measurement {
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, len(targets))
	seen := make(map[string]struct{}, len(targets))

	probeCtx := context.WithoutCancel(ctx)
	launched := 0
	for i, t := range targets {
		key := dedupKey(t.IP)
		if _, dup := seen[key]; dup {
			pm.logger.Debug("Skipping duplicate target", "ip", t.IP, "location", t.Location)
			continue
		}
		seen[key] = struct{}{}

		if err := pm.pacer.Wait(ctx); err != nil {
			pm.logger.Warn("Stopped scheduling probes", "error", err, "unscheduled", len(targets)-i)
			break
		}

		launched++
		if pm.observer != nil {
			pm.observer.Launched(t)
		}
		wg.Add(1)
		go func(t shared.Target) {
			defer wg.Done()
			out := Probe(probeCtx, pm.sessions, t, pm.timeout)
			logOutcome(pm.logger, t, out)
			if pm.observer != nil {
				pm.observer.Observe(t, out)
			}
			outcomes <- out
		}(t)
	}

	pm.logger.Debug("All probes launched, waiting for completion", "launched", launched)
	wg.Wait()
	close(outcomes)

	results := make([]shared.Measurement, 0, launched)
	for out := range outcomes {
		if out.OK() {
			results = append(results, *out.Measurement)
		}
	}
	pm.logger.Info("Probe run complete", "targets", len(targets), "launched", launched, "measured", len(results))
	return results
}

// dedupKey normalizes textual addresses so that different spellings of the
// same address are detected as duplicates.
func dedupKey(text string) string {
	if _, addr, err := Classify(text); err == nil {
		return addr.String()
	}
	return text
}
