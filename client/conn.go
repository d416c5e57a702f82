package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/ninep/protocol"
)

// MinMsize is the smallest msize worth negotiating: a Twalk with 16 names
// or a directory entry with long names must still fit.
const MinMsize = 512

var (
	ErrMsizeTooSmall     = fmt.Errorf("msize must be at least %d", MinMsize)
	ErrBadVersion        = errors.New("server does not speak " + protocol.Version)
	ErrBadResponse       = errors.New("unexpected response")
	ErrTooManyNames      = errors.New("too many names in walk")
	ErrWalkIncomplete    = errors.New("walk did not reach the last name")
	ErrNoTags            = errors.New("no free tags")
	ErrDisconnected      = errors.New("client is disconnected")
	ErrUnsupportedWhence = errors.New("unsupported seek whence")
)

// Error is an Rerror sent by the server.
type Error struct {
	Ename string
}

func (e *Error) Error() string {
	return e.Ename
}

type Options struct {
	// Msize is the msize offered in Tversion, the server may lower it.
	// Defaults to protocol.DefaultMsize.
	Msize uint32

	Uname string
	Aname string

	Log *zap.Logger
}

// Conn is a 9P2000 client connection. It is safe for concurrent use, each
// request waits on its own tag.
type Conn struct {
	ctx    context.Context
	cancel context.CancelFunc

	pconn *protocol.Conn

	respMu    sync.Mutex
	respChans map[protocol.Tag]chan protocol.Message

	tagMu   sync.Mutex
	nextTag protocol.Tag

	fidMu   sync.Mutex
	nextFid protocol.Fid
	fids    map[protocol.Fid]struct{}

	msize uint32
	root  *File

	done    chan struct{}
	readErr error

	log *zap.Logger
}

// Dial connects to addr, negotiates the version and attaches to the
// server's root.
func Dial(ctx context.Context, addr string, options Options) (*Conn, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c, err := New(ctx, conn, options)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return c, nil
}

// New runs the client over an established connection. rw is closed by
// Disconnect.
func New(ctx context.Context, rw io.ReadWriteCloser, options Options) (*Conn, error) {
	msize := options.Msize
	if msize == 0 {
		msize = protocol.DefaultMsize
	}

	if msize < MinMsize {
		return nil, ErrMsizeTooSmall
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	cctx, cancel := context.WithCancel(context.Background())

	c := &Conn{
		ctx:       cctx,
		cancel:    cancel,
		pconn:     protocol.NewConn(rw),
		respChans: make(map[protocol.Tag]chan protocol.Message),
		fids:      make(map[protocol.Fid]struct{}),
		done:      make(chan struct{}),
		log:       log,
	}

	go c.readLoop()

	if err := c.version(ctx, msize); err != nil {
		c.Disconnect()
		return nil, err
	}

	root, err := c.Attach(ctx, options.Uname, options.Aname)
	if err != nil {
		c.Disconnect()
		return nil, err
	}
	c.root = root

	return c, nil
}

// Msize is the negotiated msize.
func (c *Conn) Msize() uint32 {
	return c.msize
}

// Root is the fid attached by Dial or New.
func (c *Conn) Root() *File {
	return c.root
}

// Disconnect closes the connection. Requests in flight fail with
// ErrDisconnected.
func (c *Conn) Disconnect() error {
	c.cancel()
	err := c.pconn.Close()
	<-c.done

	return err
}

func (c *Conn) version(ctx context.Context, msize uint32) error {
	resp, err := c.rpc(ctx, &protocol.Tversion{Msize: msize, Version: protocol.Version})
	if err != nil {
		return err
	}

	rversion := resp.(*protocol.Rversion)
	if rversion.Version != protocol.Version {
		return ErrBadVersion
	}

	if rversion.Msize > msize {
		return fmt.Errorf("%w: server raised msize to %d", ErrBadResponse, rversion.Msize)
	}

	if rversion.Msize < MinMsize {
		return ErrMsizeTooSmall
	}

	c.msize = rversion.Msize
	return nil
}

// Attach returns a new fid for the root of aname.
func (c *Conn) Attach(ctx context.Context, uname, aname string) (*File, error) {
	fid := c.allocFid()

	resp, err := c.rpc(ctx, &protocol.Tattach{Fid: fid, Afid: protocol.NOFID, Uname: uname, Aname: aname})
	if err != nil {
		c.freeFid(fid)
		return nil, err
	}

	return &File{c: c, fid: fid, qid: resp.(*protocol.Rattach).Qid}, nil
}

// Flush asks the server to abandon the request with oldtag.
func (c *Conn) Flush(ctx context.Context, oldtag protocol.Tag) error {
	_, err := c.rpc(ctx, &protocol.Tflush{Oldtag: oldtag})
	return err
}

// rpc sends req and waits for its response. An Rerror is returned as
// *Error. If ctx ends first the request is flushed in the background.
func (c *Conn) rpc(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	select {
	case <-c.done:
		return nil, c.err()
	default:
	}

	tag, respChan, err := c.createResponseChan(req.Type() == protocol.TypeTversion)
	if err != nil {
		return nil, err
	}

	req.SetTag(tag)

	if err := c.pconn.WriteMsg(req); err != nil {
		c.destroyResponseChan(tag)
		return nil, err
	}

	select {
	case resp, ok := <-respChan:
		c.destroyResponseChan(tag)

		if !ok {
			return nil, c.err()
		}

		if rerror, ok := resp.(*protocol.Rerror); ok {
			return nil, &Error{Ename: rerror.Ename}
		}

		if resp.Type() != req.Type()+1 {
			return nil, fmt.Errorf("%w: %s for %s", ErrBadResponse, resp.Type(), req.Type())
		}

		return resp, nil

	case <-ctx.Done():
		if tag == protocol.NOTAG {
			c.destroyResponseChan(tag)
		} else {
			go c.flush(tag)
		}
		return nil, ctx.Err()

	case <-c.done:
		c.destroyResponseChan(tag)
		return nil, c.err()
	}
}

// flush releases tag once the server has confirmed it forgot the request.
func (c *Conn) flush(tag protocol.Tag) {
	defer c.destroyResponseChan(tag)

	if err := c.Flush(c.ctx, tag); err != nil {
		c.log.Debug("Failed to flush request", zap.Uint16("tag", uint16(tag)), zap.Error(err))
	}
}

func (c *Conn) err() error {
	if c.readErr != nil && !errors.Is(c.readErr, io.EOF) {
		return fmt.Errorf("%w: %s", ErrDisconnected, c.readErr)
	}

	return ErrDisconnected
}

func (c *Conn) readLoop() {
	log := c.log.Named("readLoop")

	defer close(c.done)

	for {
		resp, err := c.pconn.ReadMsg()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				log.Warn("Failed to read server response", zap.Error(err))
			}

			c.readErr = err

			// Nothing after a frame we could not decode can be trusted.
			// Closing done fails every request in flight.
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				c.cancel()
				if cerr := c.pconn.Close(); cerr != nil {
					log.Debug("Failed to close connection", zap.Error(cerr))
				}
			}
			return
		}

		c.sendToResponseChan(resp.GetTag(), resp)
	}
}

func (c *Conn) createResponseChan(version bool) (protocol.Tag, <-chan protocol.Message, error) {
	respChan := make(chan protocol.Message, 1)

	c.respMu.Lock()
	defer c.respMu.Unlock()

	tag := protocol.NOTAG
	if !version {
		var err error
		if tag, err = c.getNextTag(); err != nil {
			return 0, nil, err
		}
	} else if _, ok := c.respChans[tag]; ok {
		return 0, nil, ErrNoTags
	}

	c.respChans[tag] = respChan

	return tag, respChan, nil
}

func (c *Conn) sendToResponseChan(tag protocol.Tag, resp protocol.Message) {
	c.respMu.Lock()
	defer c.respMu.Unlock()

	respChan, ok := c.respChans[tag]
	if !ok {
		c.log.Debug("Response for unknown tag", zap.Uint16("tag", uint16(tag)))
		return
	}

	select {
	case respChan <- resp:
	default:
		// A response is already waiting, the server answered twice
	}
}

func (c *Conn) destroyResponseChan(tag protocol.Tag) {
	c.respMu.Lock()
	delete(c.respChans, tag)
	c.respMu.Unlock()
}

// getNextTag must be called with respMu held.
func (c *Conn) getNextTag() (protocol.Tag, error) {
	c.tagMu.Lock()
	defer c.tagMu.Unlock()

	for i := 0; i < int(protocol.NOTAG); i++ {
		tag := c.nextTag
		c.nextTag++

		// Wrap around, NOTAG is reserved for Tversion
		if c.nextTag == protocol.NOTAG {
			c.nextTag = 0
		}

		if _, ok := c.respChans[tag]; !ok {
			return tag, nil
		}
	}

	return 0, ErrNoTags
}

func (c *Conn) allocFid() protocol.Fid {
	c.fidMu.Lock()
	defer c.fidMu.Unlock()

	for {
		fid := c.nextFid
		c.nextFid++

		if fid == protocol.NOFID {
			continue
		}

		if _, ok := c.fids[fid]; ok {
			continue
		}

		c.fids[fid] = struct{}{}
		return fid
	}
}

func (c *Conn) freeFid(fid protocol.Fid) {
	c.fidMu.Lock()
	delete(c.fids, fid)
	c.fidMu.Unlock()
}
