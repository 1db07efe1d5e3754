package probe

import (
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// quotedEcho is the echo request an ICMP error message refers to.
type quotedEcho struct {
	dst netip.Addr
	id  EchoID
}

// decodeQuoted decodes the original datagram carried in the body of an ICMP
// destination unreachable, time exceeded or parameter problem message and
// returns the echo request it quotes.
func decodeQuoted(family Family, payload []byte) (q quotedEcho, ok bool) {
	switch family {
	case V4:
		return decodeQuotedV4(payload)
	case V6:
		offset, found := locateInnerIPv6Header(payload)
		if !found {
			return q, false
		}
		return decodeQuotedV6(payload[offset:])
	}
	return q, false
}

func decodeQuotedV4(payload []byte) (q quotedEcho, ok bool) {
	packet := gopacket.NewPacket(payload, layers.LayerTypeIPv4, gopacket.Default)
	ipLayer, _ := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if ipLayer == nil {
		return q, false
	}
	icmpLayer, _ := packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	if icmpLayer == nil || icmpLayer.TypeCode.Type() != layers.ICMPv4TypeEchoRequest {
		return q, false
	}
	dst, valid := netip.AddrFromSlice(ipLayer.DstIP)
	if !valid {
		return q, false
	}
	q.dst = dst.Unmap()
	q.id = EchoID{ID: icmpLayer.Id, Seq: icmpLayer.Seq}
	return q, true
}

func decodeQuotedV6(payload []byte) (q quotedEcho, ok bool) {
	packet := gopacket.NewPacket(payload, layers.LayerTypeIPv6, gopacket.Default)
	ipLayer, _ := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
	if ipLayer == nil {
		return q, false
	}
	icmpLayer, _ := packet.Layer(layers.LayerTypeICMPv6).(*layers.ICMPv6)
	if icmpLayer == nil || icmpLayer.TypeCode.Type() != layers.ICMPv6TypeEchoRequest {
		return q, false
	}
	echo, _ := packet.Layer(layers.LayerTypeICMPv6Echo).(*layers.ICMPv6Echo)
	if echo == nil {
		return q, false
	}
	dst, valid := netip.AddrFromSlice(ipLayer.DstIP)
	if !valid {
		return q, false
	}
	q.dst = dst
	q.id = EchoID{ID: echo.Identifier, Seq: echo.SeqNumber}
	return q, true
}

// locateInnerIPv6Header scans the provided payload to locate the start of an
// inner IPv6 header. Some stacks leave the 4 unused bytes of the ICMPv6 error
// header in front of the quoted datagram.
//
// The function returns the offset of the inner IPv6 header within the payload
// and a boolean indicating whether an IPv6 header was found.
func locateInnerIPv6Header(payload []byte) (int, bool) {
	if len(payload) < 40 {
		return 0, false
	}

	if payload[0]>>4 == 6 {
		return 0, true
	}

	if len(payload) >= 44 && payload[4]>>4 == 6 {
		return 4, true
	}

	for offset := 1; offset+40 <= len(payload); offset++ {
		if payload[offset]>>4 == 6 {
			return offset, true
		}
	}

	return 0, false
}
