package probe

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

var (
	// ErrTimeout means no matching reply arrived within the probe timeout.
	ErrTimeout = errors.New("echo timed out")
	// ErrInFlight means a request with the same address, id and sequence is
	// still waiting for its reply.
	ErrInFlight = errors.New("echo identifier already in flight")
	// ErrSessionClosed is returned by SendEcho after Close.
	ErrSessionClosed = errors.New("echo session closed")
	// ErrNoSession means no session is configured for the address family.
	ErrNoSession = errors.New("no echo session for address family")
)

// ParseError reports text that is not an IPv4 or IPv6 address.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse address %q: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProtocolError is an ICMP error message quoting one of our echo requests.
type ProtocolError struct {
	Type icmp.Type
	Code int
	From netip.Addr // router or host that sent the error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v (code %d) from %v", e.Type, e.Code, e.From)
}

// Unreachable reports whether the error is a destination unreachable message.
func (e *ProtocolError) Unreachable() bool {
	return e.Type == ipv4.ICMPTypeDestinationUnreachable || e.Type == ipv6.ICMPTypeDestinationUnreachable
}

// IOError is a socket level failure unrelated to the probed target.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Reason maps a probe error to a short label for logs and metrics.
func Reason(err error) string {
	var (
		parseErr *ParseError
		protoErr *ProtocolError
		ioErr    *IOError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &protoErr):
		if protoErr.Unreachable() {
			return "unreachable"
		}
		return "protocol"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "io"
	}
}
