package probe

import (
	"encoding/binary"
)

const (
	// DefaultPayloadSize matches the classic ping payload.
	DefaultPayloadSize = 56
	// stampLength is tracker (8) + id (2) + seq (2).
	stampLength = 12
)

// EchoID identifies one echo request.
type EchoID struct {
	ID  uint16
	Seq uint16
}

// buildPayload returns a size byte payload stamped with the session tracker
// and the echo identifier. Unprivileged datagram sockets let the kernel
// rewrite the ICMP id, so replies are matched on the stamp instead.
func buildPayload(size int, tracker uint64, id EchoID) []byte {
	if size < stampLength {
		size = stampLength
	}
	b := make([]byte, size)
	binary.BigEndian.PutUint64(b[0:8], tracker)
	binary.BigEndian.PutUint16(b[8:10], id.ID)
	binary.BigEndian.PutUint16(b[10:12], id.Seq)
	return b
}

// parseStamp extracts the echo identifier from a reply payload. ok is false
// when the payload is too short or carries another session's tracker.
func parseStamp(b []byte, tracker uint64) (id EchoID, ok bool) {
	if len(b) < stampLength {
		return EchoID{}, false
	}
	if binary.BigEndian.Uint64(b[0:8]) != tracker {
		return EchoID{}, false
	}
	id.ID = binary.BigEndian.Uint16(b[8:10])
	id.Seq = binary.BigEndian.Uint16(b[10:12])
	return id, true
}
