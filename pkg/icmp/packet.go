// Package icmp implements the ICMP ECHO / ECHOREPLY packet codec and the raw
// socket used to carry it.
//
// Outgoing requests are built without an IP header (the kernel prepends it);
// datagrams read back from a raw socket carry the IPv4 header, which
// ParseReply skips using the header length field.
package icmp

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// HeaderLen is the length of an ICMP echo header.
	HeaderLen = 8

	// DataLen is the length of the echo payload, including the timestamp.
	DataLen = 64 - HeaderLen

	// PacketLen is the total length of an outgoing echo request.
	PacketLen = HeaderLen + DataLen

	// MaxPacket is the largest datagram a reader needs to accept.
	MaxPacket = 65536 - 60 - HeaderLen

	// timestampLen is the width of the embedded send time: seconds and
	// microseconds, each a big-endian int64.
	timestampLen = 16

	minIPv4HeaderLen = 20
)

const (
	TypeEchoReply   = layers.ICMPv4TypeEchoReply
	TypeEchoRequest = layers.ICMPv4TypeEchoRequest
)

// Reply is a decoded ICMP datagram read from a raw socket.
type Reply struct {
	Source   netip.Addr
	Type     uint8
	Code     uint8
	Checksum uint16
	ID       uint16
	Seq      uint16
	Payload  []byte

	// ChecksumOK reports whether the ICMP checksum verified. It is
	// informational; callers decide whether to act on it.
	ChecksumOK bool
}

// IsEchoReply reports whether r is an ECHOREPLY carrying the given id and seq.
func (r *Reply) IsEchoReply(id, seq uint16) bool {
	return r.Type == TypeEchoReply && r.ID == id && r.Seq == seq
}

// SentAt returns the timestamp embedded in the payload by EchoRequest.
func (r *Reply) SentAt() (Timeval, error) {
	if len(r.Payload) < timestampLen {
		return Timeval{}, ErrNoTimestamp
	}
	return Timeval{
		Sec:  int64(binary.BigEndian.Uint64(r.Payload[0:8])),
		Usec: int64(binary.BigEndian.Uint64(r.Payload[8:16])),
	}, nil
}

// Checksum computes the Internet checksum (RFC 1071) of b. Words are summed
// in network byte order into a 32-bit accumulator; an odd trailing byte is
// padded with a zero byte. Carries are folded back until none remain and the
// result is complemented. Running Checksum over a packet whose checksum field
// is already filled in yields zero when the packet is intact.
func Checksum(b []byte) uint16 {
	var sum uint32
	for ; len(b) >= 2; b = b[2:] {
		sum += uint32(b[0])<<8 | uint32(b[1])
	}
	if len(b) == 1 {
		sum += uint32(b[0]) << 8
	}
	for sum>>16 != 0 {
		sum = sum>>16 + sum&0xffff
	}
	return ^uint16(sum)
}

// EchoRequest builds an ICMP ECHO datagram with the given identifier and
// sequence number. The send time is written right after the header so the
// reply can be timed.
func EchoRequest(id, seq uint16, sent time.Time) ([]byte, error) {
	payload := make([]byte, DataLen)
	tv := TimevalOf(sent)
	binary.BigEndian.PutUint64(payload[0:8], uint64(tv.Sec))
	binary.BigEndian.PutUint64(payload[8:16], uint64(tv.Usec))

	echo := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       id,
		Seq:      seq,
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, echo, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize echo request: %w", err)
	}

	pkt := buf.Bytes()
	binary.BigEndian.PutUint16(pkt[2:4], Checksum(pkt))
	return pkt, nil
}

// ParseReply decodes a datagram read from a raw ICMP socket. The IPv4 header
// is skipped using its length field; the remainder must hold at least a full
// ICMP header.
func ParseReply(raw []byte) (*Reply, error) {
	if len(raw) == 0 {
		return nil, ErrShortPacket
	}

	hlen := int(raw[0]&0x0f) << 2
	if hlen < minIPv4HeaderLen {
		return nil, fmt.Errorf("%w: %d", ErrBadHeader, hlen)
	}
	if len(raw) < hlen+HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrShortPacket, len(raw), hlen+HeaderLen)
	}

	var msg layers.ICMPv4
	if err := msg.DecodeFromBytes(raw[hlen:], gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortPacket, err)
	}

	src, _ := netip.AddrFromSlice(raw[12:16])

	return &Reply{
		Source:     src,
		Type:       msg.TypeCode.Type(),
		Code:       msg.TypeCode.Code(),
		Checksum:   msg.Checksum,
		ID:         msg.Id,
		Seq:        msg.Seq,
		Payload:    msg.Payload,
		ChecksumOK: Checksum(raw[hlen:]) == 0,
	}, nil
}
