package probe

import (
	"context"
	"fmt"
	"net/netip"
	"time"
)

// EchoSession sends ICMP echo requests for one address family. It must be
// safe for concurrent use by many probes.
type EchoSession interface {
	// SendEcho sends one echo request to addr and waits up to timeout for
	// the matching reply, returning the measured round-trip time.
	SendEcho(ctx context.Context, addr netip.Addr, id EchoID, timeout time.Duration) (time.Duration, error)
}

// Sessions holds the session for each address family.
type Sessions struct {
	V4 EchoSession
	V6 EchoSession
}

// For returns the session serving family f.
func (s Sessions) For(f Family) (EchoSession, error) {
	var session EchoSession
	switch f {
	case V4:
		session = s.V4
	case V6:
		session = s.V6
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, f)
	}
	return session, nil
}
