package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is a persistent, newline-framed protocol connection.
// Reads are expected from a single goroutine; writes are serialized so
// several goroutines may Send on the same Conn.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader

	mu           sync.Mutex // serializes writes
	w            *bufio.Writer
	writeTimeout time.Duration

	// ID identifies the connection for the lifetime of the process.
	ID uuid.UUID
}

// NewConn wraps an established network connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		ID:   uuid.New(),
		conn: c,
		r:    bufio.NewReader(c),
		w:    bufio.NewWriter(c),
	}
}

// Dial opens a TCP connection to addr and wraps it.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(c), nil
}

// SetWriteTimeout bounds every subsequent write. Zero disables the bound.
func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.mu.Lock()
	c.writeTimeout = d
	c.mu.Unlock()
}

// ReadLine returns the next line without its line terminator.
// A final unterminated line is returned before io.EOF.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadMessage reads and parses the next line.
// Parse failures are returned as-is; check them with IsProtocolError.
func (c *Conn) ReadMessage() (Message, error) {
	line, err := c.ReadLine()
	if err != nil {
		return Message{}, err
	}
	return Parse(line)
}

// ReadFull reads exactly n raw bytes that follow a control line.
func (c *Conn) ReadFull(n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Reader exposes the buffered read side for streaming raw payloads.
func (c *Conn) Reader() io.Reader {
	return c.r
}

// Send writes one message followed by a newline.
func (c *Conn) Send(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.armWrite(); err != nil {
		return err
	}
	if _, err := c.w.WriteString(m.String() + "\n"); err != nil {
		return fmt.Errorf("send %s: %w", m.Command, err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("send %s: %w", m.Command, err)
	}
	return nil
}

// Write sends raw payload bytes.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.armWrite(); err != nil {
		return 0, err
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.w.Flush()
}

// armWrite applies the write timeout. Caller holds c.mu.
func (c *Conn) armWrite() error {
	if c.writeTimeout <= 0 {
		return nil
	}
	return c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
}

// SetReadDeadline bounds the next reads; the zero time clears it.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// RemoteAddr returns the peer address as a string.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// IsProtocolError reports whether err came from parsing rather than I/O.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrUnknownCommand)
}
