package rndc

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// Socket is the capability a Session's I/O callbacks are wired against: a
// length-prefixed, full-duplex byte stream. The RNDC wire format itself
// carries the frame length (the first 4 bytes of every envelope), so a
// single ReadFrame/WriteFrame pair suffices.
type Socket interface {
	// ReadFrame blocks until one full length-prefixed envelope has been
	// read and returns it including the 4-byte length prefix.
	ReadFrame(ctx context.Context) ([]byte, error)

	// WriteFrame writes frame (as produced by Packet.ToBytes) in full.
	WriteFrame(ctx context.Context, frame []byte) error

	// Close releases the underlying connection.
	Close() error
}

// maxFrameSize bounds a single envelope to guard against a peer
// declaring an unreasonable length prefix. It is a defensive ceiling
// well above any real rndc.conf command.
const maxFrameSize = 1 << 20

// connSocket adapts a net.Conn to the Socket interface using RNDC's own
// 4-byte big-endian length prefix to delimit frames.
type connSocket struct {
	conn net.Conn
}

// NewSocket wraps an already-established net.Conn (e.g. from net.Dial or
// a Listener's Accept) as a Socket.
func NewSocket(conn net.Conn) Socket {
	return &connSocket{conn: conn}
}

// DialTCP connects to addr (host:port) and returns a Socket ready to
// drive a client Session.
func DialTCP(ctx context.Context, addr string) (Socket, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rndc: dial %s: %w", addr, err)
	}
	return NewSocket(conn), nil
}

func (s *connSocket) ReadFrame(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(s.conn, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("rndc: read frame length: %w", err)
	}

	declared := binary.BigEndian.Uint32(lenBuf[:])
	if declared > maxFrameSize {
		return nil, fmt.Errorf("rndc: frame of %d bytes exceeds maximum %d", declared, maxFrameSize)
	}

	rest := make([]byte, declared)
	if _, err := io.ReadFull(s.conn, rest); err != nil {
		return nil, fmt.Errorf("rndc: read frame body: %w", err)
	}

	frame := make([]byte, 0, 4+len(rest))
	frame = append(frame, lenBuf[:]...)
	frame = append(frame, rest...)
	return frame, nil
}

func (s *connSocket) WriteFrame(ctx context.Context, frame []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	} else {
		_ = s.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("rndc: write frame: %w", err)
	}
	return nil
}

func (s *connSocket) Close() error {
	return s.conn.Close()
}
