// Package transport carries DBGP traffic over TCP. The IDE listens; the
// debugger dials out, reads NUL-terminated command lines and writes framed
// responses.
package transport

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ctagard/dbgpd/internal/errors"
)

// DialTimeout bounds connecting to the IDE.
const DialTimeout = 5 * time.Second

// Conn is a connection to the IDE. Sends are serialized; reads are expected
// from a single goroutine.
type Conn struct {
	name   string
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// Dial connects to the IDE at address. name labels the connection in errors
// ("main" or "debug").
func Dial(ctx context.Context, name, address string) (*Conn, error) {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.TransportConnectFailed(address, err)
	}
	return NewConn(name, conn), nil
}

// NewConn wraps an established connection.
func NewConn(name string, conn net.Conn) *Conn {
	return &Conn{
		name:   name,
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// Name returns the connection label.
func (c *Conn) Name() string {
	return c.name
}

// Send writes one framed message.
func (c *Conn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.Write(msg); err != nil {
		return errors.TransportIO("write to "+c.name+" connection", err)
	}
	return nil
}

// Receive blocks until at least one NUL-terminated command line arrives and
// returns it together with any further complete lines already buffered. An
// orderly close by the IDE is reported as CONNECTION_CLOSED.
func (c *Conn) Receive() ([]byte, error) {
	data, err := c.reader.ReadBytes(0)
	if err != nil {
		return nil, c.readErr(err)
	}

	for c.reader.Buffered() > 0 {
		peek, _ := c.reader.Peek(c.reader.Buffered())
		if bytes.IndexByte(peek, 0) < 0 {
			break
		}
		more, err := c.reader.ReadBytes(0)
		if err != nil {
			return nil, c.readErr(err)
		}
		data = append(data, more...)
	}
	return data, nil
}

func (c *Conn) readErr(err error) error {
	if stderrors.Is(err, io.EOF) || stderrors.Is(err, net.ErrClosed) {
		return errors.ConnectionClosed(c.name).WithCause(err)
	}
	return errors.TransportIO("read from "+c.name+" connection", err)
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
