package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luma/ninep/protocol"
)

const WriteQueueSize = 127

// Conn serves one 9P connection. The read loop decodes requests and passes
// them to the Handler, the write loop encodes the responses.
type Conn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup

	id      string
	conn    net.Conn
	pconn   *protocol.Conn
	handler Handler

	writeQueue chan protocol.Message

	closeOnce sync.Once
	closeErr  error

	trace bool
	log   *zap.Logger
}

func NewConn(
	parentCtx context.Context,
	conn net.Conn,
	handler Handler,
	trace bool,
	log *zap.Logger,
) *Conn {
	ctx, cancel := context.WithCancel(parentCtx)
	id := uuid.New().String()

	return &Conn{
		ctx:        ctx,
		cancel:     cancel,
		id:         id,
		conn:       conn,
		pconn:      protocol.NewConn(conn),
		handler:    handler,
		writeQueue: make(chan protocol.Message, WriteQueueSize),
		trace:      trace,
		log:        log.With(zap.String("conn", id)),
	}
}

func (t *Conn) ID() string {
	return t.id
}

func (t *Conn) Info() SessionInfo {
	return SessionInfo{
		ID:         t.id,
		RemoteAddr: t.conn.RemoteAddr().String(),
		Msize:      t.pconn.Session().MaxMessageSize(),
	}
}

// Start runs the read and write loops and blocks until both have exited.
// The connection is closed when it returns.
func (t *Conn) Start() {
	t.loopWaiter.Add(2)

	// Unblocks the read loop once we are cancelled
	go func() {
		<-t.ctx.Done()
		t.conn.Close()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.ReadLoop()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	t.loopWaiter.Wait()
	t.shutdown()
}

// Close stops both loops and waits for them to exit.
func (t *Conn) Close() error {
	t.cancel()
	t.loopWaiter.Wait()
	t.shutdown()

	return t.closeErr
}

func (t *Conn) shutdown() {
	t.closeOnce.Do(func() {
		t.cancel()

		if err := t.handler.Close(); err != nil {
			t.log.Warn("Handler did not close cleanly", zap.Error(err))
		}

		if err := t.pconn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.closeErr = err
		}
	})
}

func (t *Conn) ReadLoop() {
	log := t.log.Named("readLoop")

	defer func() {
		// We are the only sender, the write loop drains what is left
		close(t.writeQueue)
		log.Debug("Read loop exited")
	}()

	for {
		req, err := t.pconn.ReadMsg()
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				// Answer the tag we could read, then hang up. The write
				// loop sends the Rerror before it exits.
				log.Warn("Failed to decode request, closing connection", zap.Error(err))

				t.enqueue(&protocol.Rerror{Tag: decodeErr.Tag, Ename: decodeErr.Error()})
				return
			}

			if !isClosedErr(err) {
				log.Warn("Failed to read client request", zap.Error(err))
			}
			return
		}

		if t.trace {
			log.Debug("Request", zap.Stringer("type", req.Type()), zap.String("message", fmt.Sprintf("%+v", req)))
		}

		if !t.enqueue(t.handler.Handle(t.ctx, req)) {
			return
		}
	}
}

func (t *Conn) WriteLoop() {
	log := t.log.Named("writeLoop")

	defer log.Debug("Write loop exited")

	for {
		select {
		case <-t.ctx.Done():
			return

		// These are responses to client requests handled by the read loop
		case resp, ok := <-t.writeQueue:
			if !ok {
				// Our read loop has terminated, we should too
				t.cancel()
				return
			}

			if t.trace {
				log.Debug("Response", zap.Stringer("type", resp.Type()), zap.String("message", fmt.Sprintf("%+v", resp)))
			}

			err := t.pconn.WriteMsg(resp)
			if err != nil && isEncodeErr(err) {
				log.Warn("Failed to encode response", zap.Error(err))
				err = t.pconn.WriteMsg(&protocol.Rerror{Tag: resp.GetTag(), Ename: err.Error()})
			}

			if err != nil {
				if !isClosedErr(err) {
					log.Error("Failed to write response", zap.Error(err))
				}

				t.cancel()
				return
			}
		}
	}
}

func (t *Conn) enqueue(resp protocol.Message) bool {
	select {
	case t.writeQueue <- resp:
		return true

	case <-t.ctx.Done():
		return false
	}
}

func isEncodeErr(err error) bool {
	return errors.Is(err, protocol.ErrEncodingOverflow) ||
		errors.Is(err, protocol.ErrStringTooLong) ||
		errors.Is(err, protocol.ErrArrayTooLong)
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, protocol.ErrSessionClosed) ||
		strings.Contains(err.Error(), "connection reset by peer")
}
