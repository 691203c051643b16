package icmp

import "errors"

var (
	// Reply parsing errors
	ErrShortPacket = errors.New("short packet")
	ErrBadHeader   = errors.New("bad IPv4 header length")
	ErrNoTimestamp = errors.New("payload carries no timestamp")

	// Socket errors
	ErrUnavailable = errors.New("ICMP protocol unavailable")
	ErrTimeout     = errors.New("receive timed out")
	ErrInterrupted = errors.New("interrupted system call")
	ErrShortWrite  = errors.New("short write")
)
