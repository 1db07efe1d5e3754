package probe

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58

	minReadBufferSize = 1500
	icmpHeaderLen     = 8
	maxIPv4HeaderLen  = 60
	writeAttempts     = 6
)

// SessionConfig configures an ICMPSession.
type SessionConfig struct {
	// Privileged selects raw ICMP sockets. Otherwise unprivileged datagram
	// ICMP sockets are used (net.ipv4.ping_group_range on Linux).
	Privileged  bool
	PayloadSize int
}

// packetConn is the subset of *icmp.PacketConn used by the session.
type packetConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, dst net.Addr) (int, error)
	Close() error
}

type pendingKey struct {
	addr netip.Addr
	id   EchoID
}

type echoResult struct {
	recv time.Time
	err  error
}

// pendingEcho is an in-flight request. result has room for exactly one
// value: the first of reply, ICMP error or expiry wins.
type pendingEcho struct {
	result chan echoResult
}

func (p *pendingEcho) deliver(r echoResult) {
	select {
	case p.result <- r:
	default:
	}
}

// ICMPSession owns one ICMP socket for one address family. A single receive
// goroutine demultiplexes replies to the waiting SendEcho callers.
type ICMPSession struct {
	family      Family
	conn        packetConn
	privileged  bool
	payloadSize int
	readSize    int
	tracker     uint64

	mu      sync.Mutex // serializes the in-flight check and insert
	pending *ttlcache.Cache[pendingKey, *pendingEcho]

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewICMPSession opens an ICMP socket for family. Failing to open the socket
// (typically missing privileges) is returned as *IOError.
func NewICMPSession(family Family, cfg SessionConfig) (*ICMPSession, error) {
	network, address := listenParams(family, cfg.Privileged)
	conn, err := icmp.ListenPacket(network, address)
	if err != nil {
		return nil, &IOError{Op: "listen " + network, Err: err}
	}
	slog.Debug("Opened ICMP socket", "family", family, "network", network)
	return newICMPSession(family, conn, cfg), nil
}

func newICMPSession(family Family, conn packetConn, cfg SessionConfig) *ICMPSession {
	if cfg.PayloadSize <= 0 {
		cfg.PayloadSize = DefaultPayloadSize
	}
	s := &ICMPSession{
		family:      family,
		conn:        conn,
		privileged:  cfg.Privileged,
		payloadSize: cfg.PayloadSize,
		readSize:    readBufferSize(cfg.PayloadSize),
		tracker:     rand.Uint64(),
		pending: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[pendingKey, *pendingEcho](),
		),
		done: make(chan struct{}),
	}

	s.pending.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[pendingKey, *pendingEcho]) {
		if reason == ttlcache.EvictionReasonExpired {
			item.Value().deliver(echoResult{err: ErrTimeout})
		}
	})

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.pending.Start()
	}()
	go func() {
		defer s.wg.Done()
		s.receiveLoop()
	}()

	return s
}

// readBufferSize fits a full echo reply carrying payloadSize bytes, with
// room for an IPv4 header on raw sockets that do not strip it.
func readBufferSize(payloadSize int) int {
	return max(minReadBufferSize, payloadSize+icmpHeaderLen+maxIPv4HeaderLen)
}

func listenParams(family Family, privileged bool) (network, address string) {
	switch {
	case family == V4 && privileged:
		return "ip4:icmp", "0.0.0.0"
	case family == V4:
		return "udp4", "0.0.0.0"
	case privileged:
		return "ip6:ipv6-icmp", "::"
	default:
		return "udp6", "::"
	}
}

// Family returns the address family served by the session.
func (s *ICMPSession) Family() Family { return s.family }

// SendEcho implements EchoSession.
func (s *ICMPSession) SendEcho(ctx context.Context, addr netip.Addr, id EchoID, timeout time.Duration) (time.Duration, error) {
	select {
	case <-s.done:
		return 0, ErrSessionClosed
	default:
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	b, err := s.echoRequest(id).Marshal(nil)
	if err != nil {
		return 0, &IOError{Op: "marshal", Err: err}
	}

	key := pendingKey{addr: addr, id: id}
	p := &pendingEcho{result: make(chan echoResult, 1)}

	// Register before writing so a fast reply cannot be missed.
	s.mu.Lock()
	if s.pending.Has(key) {
		s.mu.Unlock()
		return 0, ErrInFlight
	}
	s.pending.Set(key, p, timeout)
	s.mu.Unlock()
	defer s.pending.Delete(key)

	sent := time.Now()
	if err := s.write(b, addr); err != nil {
		return 0, err
	}

	select {
	case r := <-p.result:
		if r.err != nil {
			return 0, r.err
		}
		return r.recv.Sub(sent), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.done:
		return 0, ErrSessionClosed
	}
}

func (s *ICMPSession) echoRequest(id EchoID) *icmp.Message {
	msg := &icmp.Message{
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(id.ID),
			Seq:  int(id.Seq),
			Data: buildPayload(s.payloadSize, s.tracker, id),
		},
	}
	if s.family == V4 {
		msg.Type = ipv4.ICMPTypeEcho
	} else {
		msg.Type = ipv6.ICMPTypeEchoRequest
	}
	return msg
}

func (s *ICMPSession) write(b []byte, addr netip.Addr) error {
	var dst net.Addr
	if s.privileged {
		dst = &net.IPAddr{IP: addr.AsSlice(), Zone: addr.Zone()}
	} else {
		dst = &net.UDPAddr{IP: addr.AsSlice(), Zone: addr.Zone()}
	}

	var err error
	// ENOBUFS is transient under load; retry a few times.
	for range writeAttempts {
		_, err = s.conn.WriteTo(b, dst)
		if !errors.Is(err, syscall.ENOBUFS) {
			break
		}
	}
	if err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// receiveLoop reads until the connection is closed.
func (s *ICMPSession) receiveLoop() {
	buf := make([]byte, s.readSize)
	for {
		n, peer, err := s.conn.ReadFrom(buf)
		at := time.Now()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("ICMP read failed", "family", s.family, "error", err)
			continue
		}
		from, ok := addrFromNet(peer)
		if !ok {
			continue
		}
		s.handleMessage(buf[:n], from, at)
	}
}

// handleMessage matches one received ICMP message against the in-flight
// requests.
func (s *ICMPSession) handleMessage(b []byte, from netip.Addr, at time.Time) {
	proto := protocolICMP
	if s.family == V6 {
		proto = protocolIPv6ICMP
	}
	m, err := icmp.ParseMessage(proto, b)
	if err != nil {
		slog.Debug("Discarding unparsable ICMP message", "from", from, "error", err)
		return
	}

	var quoted []byte
	switch body := m.Body.(type) {
	case *icmp.Echo:
		if m.Type != ipv4.ICMPTypeEchoReply && m.Type != ipv6.ICMPTypeEchoReply {
			return
		}
		id, ok := parseStamp(body.Data, s.tracker)
		if !ok {
			return
		}
		s.resolve(pendingKey{addr: from, id: id}, echoResult{recv: at})
		return
	case *icmp.DstUnreach:
		quoted = body.Data
	case *icmp.TimeExceeded:
		quoted = body.Data
	case *icmp.ParamProb:
		quoted = body.Data
	default:
		return
	}

	q, ok := decodeQuoted(s.family, quoted)
	if !ok {
		return
	}
	s.resolve(pendingKey{addr: q.dst, id: q.id}, echoResult{
		recv: at,
		err:  &ProtocolError{Type: m.Type, Code: m.Code, From: from},
	})
}

func (s *ICMPSession) resolve(key pendingKey, r echoResult) {
	item := s.pending.Get(key)
	if item == nil {
		slog.Debug("No pending echo for reply", "addr", key.addr, "id", key.id.ID, "seq", key.id.Seq)
		return
	}
	item.Value().deliver(r)
}

// Close stops the receive loop and fails all waiting requests.
func (s *ICMPSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
		s.pending.Stop()
		s.wg.Wait()
	})
	return err
}

func addrFromNet(a net.Addr) (netip.Addr, bool) {
	var (
		ip   net.IP
		zone string
	)
	switch v := a.(type) {
	case *net.IPAddr:
		ip, zone = v.IP, v.Zone
	case *net.UDPAddr:
		ip, zone = v.IP, v.Zone
	default:
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	addr = addr.Unmap()
	if zone != "" && addr.Is6() {
		addr = addr.WithZone(zone)
	}
	return addr, true
}
