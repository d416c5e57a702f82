package transport

import (
	"context"

	"go.uber.org/zap"

	"github.com/luma/ninep/protocol"
)

// Handler answers the requests of one connection. Handle is called from a
// single goroutine, in the order requests arrive.
type Handler interface {
	Handle(ctx context.Context, req protocol.Message) protocol.Message
	Close() error
}

// HandlerFactory is called once per accepted connection.
type HandlerFactory func() Handler

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on
	Port int

	// Reuseport controls setting SO_REUSEPORT
	// TODO(rolly) this https://blog.cloudflare.com/graceful-upgrades-in-go/
	Reuseport bool

	// Trace will log every message at debug level. This is only useful in
	// local debugging
	Trace bool

	NumListeners int

	NewHandler HandlerFactory

	Log *zap.Logger
}

// SessionInfo describes one active connection.
type SessionInfo struct {
	ID         string `json:"id"`
	RemoteAddr string `json:"remoteAddr"`
	Msize      uint32 `json:"msize"`
}
