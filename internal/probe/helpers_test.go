package probe

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// quotedEchoV4 serializes the leading part of an IPv4 echo request as quoted
// by an ICMP error message: IP header plus the first 8 bytes of ICMP.
func quotedEchoV4(t *testing.T, src, dst netip.Addr, id EchoID) []byte {
	t.Helper()
	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    src.AsSlice(),
		DstIP:    dst.AsSlice(),
	}
	echo := layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       id.ID,
		Seq:      id.Seq,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &ip, &echo); err != nil {
		t.Fatalf("SerializeLayers() error = %v", err)
	}
	return buf.Bytes()
}

// quotedEchoV6 is quotedEchoV4 for IPv6.
func quotedEchoV6(t *testing.T, src, dst netip.Addr, id EchoID) []byte {
	t.Helper()
	ip := layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolICMPv6,
		SrcIP:      src.AsSlice(),
		DstIP:      dst.AsSlice(),
	}
	icmp6 := layers.ICMPv6{
		TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoRequest, 0),
	}
	if err := icmp6.SetNetworkLayerForChecksum(&ip); err != nil {
		t.Fatalf("SetNetworkLayerForChecksum() error = %v", err)
	}
	echo := layers.ICMPv6Echo{
		Identifier: id.ID,
		SeqNumber:  id.Seq,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &ip, &icmp6, &echo); err != nil {
		t.Fatalf("SerializeLayers() error = %v", err)
	}
	return buf.Bytes()
}

type fakePacket struct {
	data []byte
	from net.Addr
}

// fakeConn is an in-memory packetConn. onWrite may queue replies with
// deliver.
type fakeConn struct {
	in        chan fakePacket
	closed    chan struct{}
	once      sync.Once
	writes    atomic.Int32
	truncated atomic.Int32
	onWrite   func(c *fakeConn, b []byte, dst net.Addr)
}

func newFakeConn(onWrite func(c *fakeConn, b []byte, dst net.Addr)) *fakeConn {
	return &fakeConn{
		in:      make(chan fakePacket, 256),
		closed:  make(chan struct{}),
		onWrite: onWrite,
	}
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case p := <-c.in:
		if len(p.data) > len(b) {
			c.truncated.Add(1)
		}
		return copy(b, p.data), p.from, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteTo(b []byte, dst net.Addr) (int, error) {
	c.writes.Add(1)
	if c.onWrite != nil {
		c.onWrite(c, append([]byte(nil), b...), dst)
	}
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliver(data []byte, from net.Addr) {
	c.in <- fakePacket{data: data, from: from}
}

// echoResponder answers every echo request with an echo reply from the
// destination, like a reachable host.
func echoResponder(family Family) func(c *fakeConn, b []byte, dst net.Addr) {
	return func(c *fakeConn, b []byte, dst net.Addr) {
		proto, replyType := protocolICMP, icmp.Type(ipv4.ICMPTypeEchoReply)
		if family == V6 {
			proto, replyType = protocolIPv6ICMP, ipv6.ICMPTypeEchoReply
		}
		m, err := icmp.ParseMessage(proto, b)
		if err != nil {
			return
		}
		echo, ok := m.Body.(*icmp.Echo)
		if !ok {
			return
		}
		reply, err := (&icmp.Message{Type: replyType, Body: echo}).Marshal(nil)
		if err != nil {
			return
		}
		c.deliver(reply, dst)
	}
}

// fakeSession answers from a fixed table of round-trip times; addresses not
// in the table time out.
type fakeSession struct {
	rtts  map[netip.Addr]time.Duration
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeSession) SendEcho(ctx context.Context, addr netip.Addr, id EchoID, timeout time.Duration) (time.Duration, error) {
	f.calls.Add(1)
	if id.Seq != 0 {
		return 0, &IOError{Op: "unexpected sequence", Err: ErrInFlight}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if rtt, ok := f.rtts[addr]; ok {
		return rtt, nil
	}
	return 0, ErrTimeout
}

// constSession succeeds for every address with the same round-trip time.
type constSession time.Duration

func (c constSession) SendEcho(context.Context, netip.Addr, EchoID, time.Duration) (time.Duration, error) {
	return time.Duration(c), nil
}

// timeoutSession never sees a reply.
type timeoutSession struct{}

func (timeoutSession) SendEcho(context.Context, netip.Addr, EchoID, time.Duration) (time.Duration, error) {
	return 0, ErrTimeout
}

// collidingSession reports the first collisions requests as already in
// flight and then answers with rtt. It records every identifier it saw.
type collidingSession struct {
	mu         sync.Mutex
	collisions int
	rtt        time.Duration
	ids        []EchoID
}

func (c *collidingSession) SendEcho(_ context.Context, _ netip.Addr, id EchoID, _ time.Duration) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
	if len(c.ids) <= c.collisions {
		return 0, ErrInFlight
	}
	return c.rtt, nil
}
