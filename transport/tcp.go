package transport

import (
	"context"
	"errors"
	"net"
	"runtime"
	"sort"
	"strconv"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrNotStarted = errors.New("transport has not been started")

type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr      string
	reuseport bool

	numListeners int
	listeners    []*TCPListener

	newHandler HandlerFactory

	log   *zap.Logger
	trace bool
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	// Without SO_REUSEPORT only one socket can bind the address
	if !options.Reuseport {
		numListeners = 1
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:    options.Reuseport,
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		newHandler:   options.NewHandler,
		trace:        options.Trace,
		log:          log,
	}
}

// Start binds every listener before returning, then accepts connections in
// the background until ctx is cancelled or Close is called.
func (w *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners", zap.Int("count", w.numListeners))

	var err error
	for i := 0; i < w.numListeners; i++ {
		listener := NewTCPListener(
			ctx,
			w.addr,
			w.reuseport,
			w.newHandler,
			w.trace,
			w.log.Named("listener").With(zap.Int("listener", i)),
		)

		if lerr := listener.Listen(); lerr != nil {
			err = multierr.Append(err, lerr)
			continue
		}

		w.listeners = append(w.listeners, listener)
	}

	if len(w.listeners) == 0 {
		cancel()
		return err
	}

	if err != nil {
		// Some listeners could not bind, carry on with the ones that did
		w.log.Error("Failed to listen", zap.Error(err))
	}

	for _, listener := range w.listeners {
		w.stopWaiter.Add(1)

		go func(listener *TCPListener) {
			defer w.stopWaiter.Done()

			if err := listener.Serve(); err != nil {
				w.log.Error("Listener stopped accepting connections", zap.Error(err))
			}
		}(listener)
	}

	return nil
}

// Addr is the address of the first listener, useful when Port was 0.
func (w *TCP) Addr() net.Addr {
	if len(w.listeners) == 0 {
		return nil
	}

	return w.listeners[0].Addr()
}

// Sessions lists the active connections of every listener.
func (w *TCP) Sessions() []SessionInfo {
	sessions := make([]SessionInfo, 0)
	for _, listener := range w.listeners {
		sessions = append(sessions, listener.Sessions()...)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})

	return sessions
}

// Close immediately closes all active listeners and connections.
//
// For a graceful shutdown, use Shutdown()
func (w *TCP) Close() (err error) {
	if w.cancel == nil {
		return ErrNotStarted
	}

	w.log.Info("Stopping TCP server")
	w.cancel()

	// Tell listeners to stop
	for _, listener := range w.listeners {
		err = multierr.Append(err, listener.Close())
	}

	w.stopWaiter.Wait()
	w.log.Info("Listeners stopped")

	return err
}

// Shutdown stops accepting connections and waits for the active ones to
// finish. If ctx ends first the remaining connections are closed.
func (w *TCP) Shutdown(ctx context.Context) (err error) {
	if w.cancel == nil {
		return ErrNotStarted
	}

	for _, listener := range w.listeners {
		err = multierr.Append(err, listener.StopAccepting())
	}

	drained := make(chan struct{})
	go func() {
		for _, listener := range w.listeners {
			listener.Drain()
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		w.log.Warn("Shutdown timed out, closing active connections")
	}

	return multierr.Append(err, w.Close())
}

type TCPListener struct {
	ctx context.Context

	addr      string
	reuseport bool
	listener  net.Listener

	newHandler HandlerFactory
	trace      bool

	log *zap.Logger

	mu          sync.Mutex
	activeConns map[*Conn]struct{}
	connWaiter  sync.WaitGroup
}

func NewTCPListener(
	ctx context.Context,
	addr string,
	reuseport bool,
	newHandler HandlerFactory,
	trace bool,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		activeConns: make(map[*Conn]struct{}),
		addr:        addr,
		reuseport:   reuseport,
		newHandler:  newHandler,
		trace:       trace,
		log:         log,
	}
}

// Listen binds the listening socket.
func (t *TCPListener) Listen() error {
	var (
		listener net.Listener
		err      error
	)

	if t.reuseport {
		listener, err = reuseport.Listen("tcp", t.addr)
	} else {
		listener, err = net.Listen("tcp", t.addr)
	}

	if err != nil {
		return err
	}

	t.listener = listener
	t.log.Info("Listening", zap.Stringer("addr", listener.Addr()))

	return nil
}

func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

// Serve accepts connections until the listener is closed or its context
// is cancelled. Every connection is served on its own goroutines.
func (t *TCPListener) Serve() error {
	go func() {
		<-t.ctx.Done()

		if err := t.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.log.Warn("TCP Listener did not close cleanly", zap.Error(err))
		}
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				t.log.Info("Stopped accepting new connections")
				return nil
			}

			// TODO(rolly) can we recover from some classes of err?
			return err
		}

		t.ServeConn(conn)
	}
}

// ServeConn serves a single connection until either side closes it.
func (t *TCPListener) ServeConn(conn net.Conn) *Conn {
	c := NewConn(t.ctx, conn, t.newHandler(), t.trace, t.log.Named("conn"))

	t.addConn(c)
	t.connWaiter.Add(1)

	go func() {
		defer t.connWaiter.Done()
		defer t.removeConn(c)

		c.Start()
	}()

	return c
}

// StopAccepting closes the listening socket, active connections are left
// running.
func (t *TCPListener) StopAccepting() error {
	if t.listener == nil {
		return nil
	}

	if err := t.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

// Drain waits for every active connection to finish.
func (t *TCPListener) Drain() {
	t.connWaiter.Wait()
}

// Close closes the listening socket and every active connection.
func (t *TCPListener) Close() (err error) {
	err = t.StopAccepting()

	t.mu.Lock()
	conns := make([]*Conn, 0, len(t.activeConns))
	for conn := range t.activeConns {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}

	t.Drain()

	return err
}

func (t *TCPListener) Sessions() []SessionInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions := make([]SessionInfo, 0, len(t.activeConns))
	for conn := range t.activeConns {
		sessions = append(sessions, conn.Info())
	}

	return sessions
}

func (t *TCPListener) addConn(conn *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeConns[conn] = struct{}{}
}

func (t *TCPListener) removeConn(conn *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}
