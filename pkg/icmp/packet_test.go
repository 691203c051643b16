package icmp

import (
	"encoding/binary"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// withIPHeader prepends a minimal IPv4 header with the given source, as a
// raw socket read would.
func withIPHeader(src netip.Addr, icmpBytes []byte) []byte {
	hdr := make([]byte, 20)
	hdr[0] = 0x45
	hdr[9] = 1
	binary.BigEndian.PutUint16(hdr[2:4], uint16(20+len(icmpBytes)))
	a := src.As4()
	copy(hdr[12:16], a[:])
	return append(hdr, icmpBytes...)
}

// asReply turns an echo request into the echo reply a peer would send back.
func asReply(req []byte) []byte {
	rep := append([]byte(nil), req...)
	rep[0] = 0
	rep[2], rep[3] = 0, 0
	binary.BigEndian.PutUint16(rep[2:4], Checksum(rep))
	return rep
}

func TestChecksum_KnownValue(t *testing.T) {
	// RFC 1071 section 3 example.
	b := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	if got := Checksum(b); got != ^uint16(0xddf2) {
		t.Errorf("expected %#04x, got %#04x", ^uint16(0xddf2), got)
	}
}

func TestChecksum_OddLength(t *testing.T) {
	if got, want := Checksum([]byte{0x01}), ^uint16(0x0100); got != want {
		t.Errorf("expected %#04x, got %#04x", want, got)
	}
	if got, want := Checksum([]byte{0x12, 0x34, 0x56}), ^uint16(0x1234+0x5600); got != want {
		t.Errorf("expected %#04x, got %#04x", want, got)
	}
}

func TestChecksum_Empty(t *testing.T) {
	if got := Checksum(nil); got != 0xffff {
		t.Errorf("expected 0xffff, got %#04x", got)
	}
}

func TestChecksum_VerifiesToZero(t *testing.T) {
	for _, seq := range []uint16{0, 1, 7, 0xffff} {
		pkt, err := EchoRequest(0x1234, seq, time.Unix(1700000000, 123456000))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := Checksum(pkt); got != 0 {
			t.Errorf("seq %d: checksum over full packet = %#04x, want 0", seq, got)
		}

		// Clearing and recomputing the field must give the same value.
		stored := binary.BigEndian.Uint16(pkt[2:4])
		pkt[2], pkt[3] = 0, 0
		if got := Checksum(pkt); got != stored {
			t.Errorf("seq %d: recomputed %#04x, stored %#04x", seq, got, stored)
		}
	}
}

func TestChecksum_MatchesGopacket(t *testing.T) {
	sent := time.Unix(1700000123, 999999000)
	pkt, err := EchoRequest(4242, 3, sent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	echo := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       4242,
		Seq:      3,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, echo, gopacket.Payload(pkt[HeaderLen:])); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	want := binary.BigEndian.Uint16(buf.Bytes()[2:4])
	got := binary.BigEndian.Uint16(pkt[2:4])
	if got != want {
		t.Errorf("expected gopacket checksum %#04x, got %#04x", want, got)
	}
}

func TestEchoRequest_Layout(t *testing.T) {
	sent := time.Unix(1700000000, 500000000)
	pkt, err := EchoRequest(0xbeef, 9, sent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pkt) != PacketLen {
		t.Fatalf("expected %d bytes, got %d", PacketLen, len(pkt))
	}
	if pkt[0] != TypeEchoRequest || pkt[1] != 0 {
		t.Errorf("expected type 8 code 0, got type %d code %d", pkt[0], pkt[1])
	}
	if id := binary.BigEndian.Uint16(pkt[4:6]); id != 0xbeef {
		t.Errorf("expected id 0xbeef, got %#04x", id)
	}
	if seq := binary.BigEndian.Uint16(pkt[6:8]); seq != 9 {
		t.Errorf("expected seq 9, got %d", seq)
	}
	if sec := binary.BigEndian.Uint64(pkt[8:16]); sec != 1700000000 {
		t.Errorf("expected seconds 1700000000, got %d", sec)
	}
	if usec := binary.BigEndian.Uint64(pkt[16:24]); usec != 500000 {
		t.Errorf("expected microseconds 500000, got %d", usec)
	}
}

func TestParseReply_EchoReply(t *testing.T) {
	src := netip.MustParseAddr("192.0.2.7")
	sent := time.Unix(1700000000, 250000000)
	req, err := EchoRequest(77, 5, sent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, err := ParseReply(withIPHeader(src, asReply(req)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Source != src {
		t.Errorf("expected source %s, got %s", src, r.Source)
	}
	if r.Type != TypeEchoReply {
		t.Errorf("expected echo reply, got type %d", r.Type)
	}
	if !r.IsEchoReply(77, 5) {
		t.Error("expected reply to match id 77 seq 5")
	}
	if r.IsEchoReply(77, 6) || r.IsEchoReply(78, 5) {
		t.Error("reply must not match a different id or seq")
	}
	if !r.ChecksumOK {
		t.Error("expected checksum to verify")
	}

	tv, err := r.SentAt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tv != (Timeval{Sec: 1700000000, Usec: 250000}) {
		t.Errorf("unexpected embedded timestamp %+v", tv)
	}
}

func TestParseReply_HonorsHeaderLength(t *testing.T) {
	req, _ := EchoRequest(1, 2, time.Unix(0, 0))
	raw := withIPHeader(netip.MustParseAddr("10.0.0.1"), nil)
	raw[0] = 0x46 // 24-byte header with one option word
	raw = append(raw, 1, 1, 1, 1)
	raw = append(raw, asReply(req)...)

	r, err := ParseReply(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID != 1 || r.Seq != 2 {
		t.Errorf("expected id 1 seq 2, got id %d seq %d", r.ID, r.Seq)
	}
}

func TestParseReply_ShortPacket(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.1")
	cases := map[string][]byte{
		"empty":          nil,
		"header only":    withIPHeader(src, nil),
		"truncated icmp": withIPHeader(src, []byte{0, 0, 0, 0, 0, 0, 0}),
	}
	for name, raw := range cases {
		if _, err := ParseReply(raw); !errors.Is(err, ErrShortPacket) {
			t.Errorf("%s: expected ErrShortPacket, got %v", name, err)
		}
	}
}

func TestParseReply_BadHeaderLength(t *testing.T) {
	raw := make([]byte, 40)
	raw[0] = 0x44
	if _, err := ParseReply(raw); !errors.Is(err, ErrBadHeader) {
		t.Errorf("expected ErrBadHeader, got %v", err)
	}
}

func TestParseReply_DestinationUnreachable(t *testing.T) {
	msg := make([]byte, 8+28)
	msg[0] = layers.ICMPv4TypeDestinationUnreachable
	msg[1] = layers.ICMPv4CodeHost
	binary.BigEndian.PutUint16(msg[2:4], Checksum(msg))

	r, err := ParseReply(withIPHeader(netip.MustParseAddr("198.51.100.1"), msg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.IsEchoReply(0, 0) {
		t.Error("destination unreachable must never match as an echo reply")
	}
}

func TestParseReply_BadChecksumStillDecodes(t *testing.T) {
	req, _ := EchoRequest(3, 4, time.Unix(10, 0))
	rep := asReply(req)
	rep[2] ^= 0xff

	r, err := ParseReply(withIPHeader(netip.MustParseAddr("10.1.1.1"), rep))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ChecksumOK {
		t.Error("expected checksum mismatch to be reported")
	}
	if !r.IsEchoReply(3, 4) {
		t.Error("expected reply to still match on id and seq")
	}
}

func TestReply_SentAt_NoTimestamp(t *testing.T) {
	r := &Reply{Payload: []byte{1, 2, 3}}
	if _, err := r.SentAt(); !errors.Is(err, ErrNoTimestamp) {
		t.Errorf("expected ErrNoTimestamp, got %v", err)
	}
}
