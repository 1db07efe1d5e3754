package probe

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/tkjaer/geoping/internal/shared"
)

const (
	// DefaultTimeout bounds the wait for a single echo reply.
	DefaultTimeout = 5 * time.Second
	// DefaultInterval is the minimum delay between two probe launches.
	DefaultInterval = 50 * time.Millisecond
)

// Outcome is the result of one probe. Exactly one of Measurement and Err
// is set.
type Outcome struct {
	Measurement *shared.Measurement
	Err         error
}

// OK reports whether the probe produced a measurement.
func (o Outcome) OK() bool { return o.Err == nil && o.Measurement != nil }

// Observer receives every probe outcome, successful or not.
type Observer interface {
	Launched(target shared.Target)
	Observe(target shared.Target, out Outcome)
}

// newEchoID returns a random identifier. The sequence is always 0, a host
// is probed exactly once.
func newEchoID() EchoID {
	return EchoID{ID: uint16(rand.UintN(1 << 16)), Seq: 0}
}

// Probe performs one echo exchange with target. Lost replies are never
// retried; an identifier collision with another in-flight request is
// retried once with a fresh identifier.
func Probe(ctx context.Context, sessions Sessions, target shared.Target, timeout time.Duration) Outcome {
	family, addr, err := Classify(target.IP)
	if err != nil {
		return Outcome{Err: err}
	}

	session, err := sessions.For(family)
	if err != nil {
		return Outcome{Err: err}
	}

	rtt, err := session.SendEcho(ctx, addr, newEchoID(), timeout)
	if errors.Is(err, ErrInFlight) {
		rtt, err = session.SendEcho(ctx, addr, newEchoID(), timeout)
	}
	if err != nil {
		return Outcome{Err: err}
	}

	m := shared.NewMeasurement(target, rtt.Seconds())
	return Outcome{Measurement: &m}
}

// logOutcome reports an outcome to the operator.
func logOutcome(logger *slog.Logger, target shared.Target, out Outcome) {
	if out.OK() {
		logger.Info("Probe done",
			"ip", target.IP,
			"location", target.Location,
			"rtt", time.Duration(out.Measurement.Time*float64(time.Second)),
		)
		return
	}
	logger.Warn("Probe failed",
		"ip", target.IP,
		"location", target.Location,
		"reason", Reason(out.Err),
		"error", out.Err,
	)
}
