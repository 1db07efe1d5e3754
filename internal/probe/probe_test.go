package probe

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tkjaer/geoping/internal/shared"
)

func TestProbe(t *testing.T) {
	v4 := &fakeSession{rtts: map[netip.Addr]time.Duration{netip.MustParseAddr("203.0.113.1"): 12 * time.Millisecond}}
	v6 := &fakeSession{rtts: map[netip.Addr]time.Duration{netip.MustParseAddr("2001:db8::1"): 34 * time.Millisecond}}
	sessions := Sessions{V4: v4, V6: v6}

	tests := []struct {
		name       string
		target     shared.Target
		want       *shared.Measurement
		wantReason string
	}{
		{
			name:   "IPv4 reply",
			target: shared.Target{IP: "203.0.113.1", Location: "CityA"},
			want:   &shared.Measurement{IP: "203.0.113.1", Location: "CityA", Time: 0.012},
		},
		{
			name:   "IPv6 reply",
			target: shared.Target{IP: "2001:db8::1", Location: "CityC"},
			want:   &shared.Measurement{IP: "2001:db8::1", Location: "CityC", Time: 0.034},
		},
		{
			name:       "no reply",
			target:     shared.Target{IP: "203.0.113.2", Location: "CityD"},
			wantReason: "timeout",
		},
		{
			name:       "unparsable address",
			target:     shared.Target{IP: "bad-address", Location: "CityB"},
			wantReason: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Probe(context.Background(), sessions, tt.target, time.Second)
			if diff := cmp.Diff(tt.want, out.Measurement); diff != "" {
				t.Errorf("Probe() measurement mismatch (-want +got):\n%s", diff)
			}
			if tt.want != nil {
				if !out.OK() || out.Err != nil {
					t.Errorf("Probe() = %+v, want success", out)
				}
				return
			}
			if out.OK() {
				t.Errorf("Probe() OK = true, want failure")
			}
			if got := Reason(out.Err); got != tt.wantReason {
				t.Errorf("Reason(Probe().Err) = %q, want %q", got, tt.wantReason)
			}
		})
	}
}

func TestProbe_ParseErrorSendsNothing(t *testing.T) {
	v4, v6 := &fakeSession{}, &fakeSession{}
	out := Probe(context.Background(), Sessions{V4: v4, V6: v6}, shared.Target{IP: "not-an-ip"}, time.Second)

	var parseErr *ParseError
	if !errors.As(out.Err, &parseErr) {
		t.Fatalf("Probe() error = %v, want *ParseError", out.Err)
	}
	if n := v4.calls.Load() + v6.calls.Load(); n != 0 {
		t.Errorf("sessions called %d times, want 0", n)
	}
}

func TestProbe_RoutesByFamily(t *testing.T) {
	v4, v6 := &fakeSession{}, &fakeSession{}
	sessions := Sessions{V4: v4, V6: v6}

	Probe(context.Background(), sessions, shared.Target{IP: "192.0.2.1"}, time.Millisecond)
	Probe(context.Background(), sessions, shared.Target{IP: "::ffff:192.0.2.1"}, time.Millisecond)
	Probe(context.Background(), sessions, shared.Target{IP: "2001:db8::1"}, time.Millisecond)

	if n := v4.calls.Load(); n != 2 {
		t.Errorf("V4 session called %d times, want 2", n)
	}
	if n := v6.calls.Load(); n != 1 {
		t.Errorf("V6 session called %d times, want 1", n)
	}
}

func TestProbe_NoSession(t *testing.T) {
	out := Probe(context.Background(), Sessions{V4: &fakeSession{}}, shared.Target{IP: "2001:db8::1"}, time.Second)
	if !errors.Is(out.Err, ErrNoSession) {
		t.Errorf("Probe() error = %v, want ErrNoSession", out.Err)
	}
}

func TestProbe_IdentifierCollision(t *testing.T) {
	tests := []struct {
		name       string
		collisions int
		wantCalls  int
		wantErr    error
	}{
		{"no collision", 0, 1, nil},
		{"retried once", 1, 2, nil},
		{"gives up after one retry", 2, 2, ErrInFlight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &collidingSession{collisions: tt.collisions, rtt: 3 * time.Millisecond}
			out := Probe(context.Background(), Sessions{V4: s}, shared.Target{IP: "192.0.2.1"}, time.Second)

			if !errors.Is(out.Err, tt.wantErr) {
				t.Errorf("Probe() error = %v, want %v", out.Err, tt.wantErr)
			}
			if tt.wantErr == nil && !out.OK() {
				t.Errorf("Probe() OK = false, want measurement")
			}
			if len(s.ids) != tt.wantCalls {
				t.Fatalf("SendEcho called %d times, want %d", len(s.ids), tt.wantCalls)
			}
			for _, id := range s.ids {
				if id.Seq != 0 {
					t.Errorf("SendEcho id seq = %d, want 0", id.Seq)
				}
			}
		})
	}
}

func TestProbe_OverICMPSession(t *testing.T) {
	s := newICMPSession(V4, newFakeConn(echoResponder(V4)), SessionConfig{Privileged: false})
	defer s.Close()

	out := Probe(context.Background(), Sessions{V4: s}, shared.Target{IP: "203.0.113.1", Location: "CityA"}, time.Second)
	if !out.OK() {
		t.Fatalf("Probe() error = %v", out.Err)
	}
	if out.Measurement.IP != "203.0.113.1" || out.Measurement.Location != "CityA" {
		t.Errorf("Probe() measurement = %+v, want target fields copied", out.Measurement)
	}
	if out.Measurement.Time < 0 || out.Measurement.Time > 1 {
		t.Errorf("Probe() time = %v, want within [0, 1]", out.Measurement.Time)
	}
}

func TestNewEchoID(t *testing.T) {
	seen := make(map[uint16]bool)
	for range 64 {
		id := newEchoID()
		if id.Seq != 0 {
			t.Fatalf("newEchoID() seq = %d, want 0", id.Seq)
		}
		seen[id.ID] = true
	}
	if len(seen) < 2 {
		t.Errorf("newEchoID() returned the same identifier 64 times")
	}
}
