package fileserver

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/luma/ninep/protocol"
	"github.com/luma/ninep/storage"
)

var (
	ErrUnknownFid      = errors.New("unknown fid")
	ErrFidInUse        = errors.New("fid already in use")
	ErrBadFid          = errors.New("bad fid")
	ErrFileOpen        = errors.New("file already open")
	ErrFileNotOpen     = errors.New("file not open for I/O")
	ErrPermission      = errors.New("permission denied")
	ErrBadReadOffset   = errors.New("bad offset in directory read")
	ErrBadWriteOffset  = errors.New("write offset beyond end of file")
	ErrShortRead       = errors.New("count too small for directory entry")
	ErrAuthNotRequired = errors.New("authentication not required")
	ErrBadAttach       = errors.New("unknown attach name")
	ErrTooManyNames    = errors.New("too many names in walk")
	ErrMsizeTooSmall   = errors.New("msize too small")
	ErrUnexpected      = errors.New("unexpected message")
	ErrBadWstat        = errors.New("wstat can't convert between files and directories")
)

// MinMsize is the smallest msize a client may negotiate.
const MinMsize = 512

type Options struct {
	Store storage.Store

	// Msize is the largest msize the server will agree to. Defaults to
	// protocol.DefaultMsize.
	Msize uint32

	// Owner is reported as the uid, gid and muid of every file.
	Owner string

	Log *zap.Logger
}

// Server exports a storage.Store as a 9P2000 file tree. Each connection
// gets its own Handler.
type Server struct {
	store   storage.Store
	msize   uint32
	owner   string
	started time.Time

	log *zap.Logger
}

func New(options Options) *Server {
	msize := options.Msize
	if msize == 0 {
		msize = protocol.DefaultMsize
	}

	owner := options.Owner
	if owner == "" {
		owner = "none"
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		store:   options.Store,
		msize:   msize,
		owner:   owner,
		started: time.Now(),
		log:     log,
	}
}

func (s *Server) Msize() uint32 {
	return s.msize
}

func (s *Server) Store() storage.Store {
	return s.store
}

// NewHandler returns the handler for a new connection.
func (s *Server) NewHandler() *Handler {
	return &Handler{
		srv:   s,
		msize: s.msize,
		fids:  make(map[protocol.Fid]*fidState),
		log:   s.log.Named("handler"),
	}
}

func (s *Server) stat(e *storage.Entry) protocol.Stat {
	mtime := e.Modified
	if mtime.IsZero() {
		mtime = s.started
	}

	st := protocol.Stat{
		Qid:    qidOf(e),
		Mode:   0644,
		Atime:  uint32(mtime.Unix()),
		Mtime:  uint32(mtime.Unix()),
		Length: uint64(len(e.Content)),
		Name:   e.Name(),
		Uid:    s.owner,
		Gid:    s.owner,
		Muid:   s.owner,
	}

	if e.Dir {
		st.Mode = protocol.DMDIR | 0755
		st.Length = 0
	}

	return st
}

func qidOf(e *storage.Entry) protocol.Qid {
	qid := protocol.Qid{
		Type:    protocol.QTFILE,
		Version: e.Version,
		Path:    e.ID,
	}

	if e.Dir {
		qid.Type = protocol.QTDIR
	}

	return qid
}
