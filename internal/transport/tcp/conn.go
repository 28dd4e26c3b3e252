// Package tcp serves the chat protocol as newline-delimited JSON over TCP.
package tcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/vovakirdan/chatrelay/internal/session"
)

// DefaultMaxFrame bounds a single line when no limit is configured.
const DefaultMaxFrame = 1 << 20

// lineConn frames a net.Conn as one JSON object per line.
type lineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner

	writeMu sync.Mutex
}

func newLineConn(conn net.Conn, maxFrame int) *lineConn {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	initial := 4096
	if maxFrame < initial {
		initial = maxFrame
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, initial), maxFrame)
	return &lineConn{conn: conn, scanner: scanner}
}

// ReadFrame returns the next non-blank line. The read is unblocked by Close,
// not by ctx.
func (c *lineConn) ReadFrame(ctx context.Context) ([]byte, error) {
	for c.scanner.Scan() {
		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}
	if err := c.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, session.ErrFrameTooLarge
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// WriteFrame writes frame plus a newline, honoring the ctx deadline.
func (c *lineConn) WriteFrame(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := c.conn.Write(buf)
	return err
}

func (c *lineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *lineConn) Close() error {
	return c.conn.Close()
}
