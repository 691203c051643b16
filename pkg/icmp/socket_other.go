//go:build !unix

package icmp

import (
	"net/netip"
	"time"
)

const ReadTimeout = time.Second

// Conn is unavailable on this platform.
type Conn struct{}

// Dial always fails with ErrUnavailable on non-unix platforms.
func Dial(netip.Addr) (*Conn, error) {
	return nil, ErrUnavailable
}

func (*Conn) Send([]byte) error        { return ErrUnavailable }
func (*Conn) Recv([]byte) (int, error) { return 0, ErrUnavailable }
func (*Conn) Close() error             { return nil }
func (*Conn) Handle() int              { return -1 }
