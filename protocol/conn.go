package protocol

import (
	"errors"
	"io"
	"sync"
)

// DefaultReadSize is how many bytes Conn asks the transport for at a time.
const DefaultReadSize = 32 * 1024

// Conn carries messages over an io.ReadWriter through a Session.
//
// ReadMsg only reads from the transport when no complete frame is already
// buffered, so a caller that stops calling ReadMsg stops the reads. ReadMsg
// and WriteMsg may be called from different goroutines.
type Conn struct {
	rw      io.ReadWriter
	session *Session

	rbuf []byte
	rerr error

	wmu sync.Mutex
}

func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		rw:      rw,
		session: NewSession(),
		rbuf:    make([]byte, DefaultReadSize),
	}
}

func (c *Conn) Session() *Session {
	return c.session
}

// ReadMsg returns the next inbound message. A transport that ends inside a
// frame yields io.ErrUnexpectedEOF.
func (c *Conn) ReadMsg() (Message, error) {
	for {
		m, err := c.session.Next()
		if err != nil || m != nil {
			return m, err
		}

		if c.rerr != nil {
			if errors.Is(c.rerr, io.EOF) && c.session.Buffered() > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, c.rerr
		}

		n, err := c.rw.Read(c.rbuf)
		if n > 0 {
			if _, werr := c.session.Write(c.rbuf[:n]); werr != nil {
				return nil, werr
			}
		}

		if err != nil {
			c.rerr = err
		}
	}
}

// WriteMsg encodes m and writes its frame.
func (c *Conn) WriteMsg(m Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	b, err := c.session.Encode(m)
	if err != nil {
		return err
	}

	_, err = c.rw.Write(b)
	return err
}

// Close releases the session and closes the transport if it is an
// io.Closer.
func (c *Conn) Close() error {
	c.session.Close()

	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}
