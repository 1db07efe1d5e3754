package probe

import (
	"net/netip"
)

// Family is the address family of a probe target.
type Family int

const (
	V4 Family = 4
	V6 Family = 6
)

func (f Family) String() string {
	switch f {
	case V4:
		return "ipv4"
	case V6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// Classify parses text as an IPv4 or IPv6 address and reports its family.
// IPv4-mapped IPv6 addresses are unmapped and classified as IPv4.
func Classify(text string) (Family, netip.Addr, error) {
	addr, err := netip.ParseAddr(text)
	if err != nil {
		return 0, netip.Addr{}, &ParseError{Text: text, Err: err}
	}
	addr = addr.Unmap()
	if addr.Is4() {
		return V4, addr, nil
	}
	return V6, addr, nil
}
