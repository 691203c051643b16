//go:build unix

package icmp

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ReadTimeout bounds a single Recv so readers can notice cancellation.
const ReadTimeout = time.Second

// Conn is a raw IPv4 ICMP socket connected to one destination.
type Conn struct {
	fd  int
	dst netip.Addr
}

// Dial opens a raw ICMP socket and connects it to addr, so the kernel only
// queues datagrams whose source is addr. Opening a raw socket usually needs
// CAP_NET_RAW or root.
func Dial(addr netip.Addr) (*Conn, error) {
	if !addr.Is4() {
		return nil, fmt.Errorf("dial %s: not an IPv4 address", addr)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_ICMP)
	if err != nil {
		if errors.Is(err, unix.EPROTONOSUPPORT) || errors.Is(err, unix.EAFNOSUPPORT) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.Connect(fd, &unix.SockaddrInet4{Addr: addr.As4()}); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("connect", err)
	}

	tv := unix.NsecToTimeval(ReadTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}

	return &Conn{fd: fd, dst: addr}, nil
}

// Send writes one datagram to the connected destination.
func (c *Conn) Send(b []byte) error {
	n, err := unix.Write(c.fd, b)
	if err != nil {
		return fmt.Errorf("send to %s: %w", c.dst, os.NewSyscallError("write", err))
	}
	if n != len(b) {
		return fmt.Errorf("send to %s: %w: %d of %d bytes", c.dst, ErrShortWrite, n, len(b))
	}
	return nil
}

// Recv reads one datagram, IP header included, into b.
func (c *Conn) Recv(b []byte) (int, error) {
	n, _, err := unix.Recvfrom(c.fd, b, 0)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
		return 0, ErrTimeout
	case errors.Is(err, unix.EINTR):
		return 0, ErrInterrupted
	default:
		return 0, fmt.Errorf("receive from %s: %w", c.dst, os.NewSyscallError("recvfrom", err))
	}
}

// Close releases the socket.
func (c *Conn) Close() error {
	return unix.Close(c.fd)
}

// Handle returns the socket descriptor.
func (c *Conn) Handle() int {
	return c.fd
}
