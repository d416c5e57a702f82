package fileserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/ninep/protocol"
	"github.com/luma/ninep/storage"
)

type fidState struct {
	path []string
	qid  protocol.Qid

	open bool
	mode protocol.OpenMode

	// raw is set when the file held a non-string JSON value when it was
	// opened. Writes that parse as a JSON scalar are stored as such.
	raw bool

	dir *statList
}

// Handler holds the fid table of one connection. Requests are answered one
// at a time.
type Handler struct {
	srv *Server

	mu    sync.Mutex
	msize uint32
	fids  map[protocol.Fid]*fidState

	log *zap.Logger
}

// Handle answers req. The response always carries req's tag, failures are
// returned as *protocol.Rerror.
func (h *Handler) Handle(ctx context.Context, req protocol.Message) protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	resp, err := h.dispatch(ctx, req)
	if err != nil {
		h.log.Debug("Request failed",
			zap.Stringer("type", req.Type()),
			zap.Uint16("tag", uint16(req.GetTag())),
			zap.Error(err))

		return &protocol.Rerror{Tag: req.GetTag(), Ename: err.Error()}
	}

	resp.SetTag(req.GetTag())
	return resp
}

// Msize is the msize negotiated by the last Tversion.
func (h *Handler) Msize() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.msize
}

// Close clunks every fid, removing files opened with ORCLOSE.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.reset(context.Background())
}

func (h *Handler) dispatch(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	switch m := req.(type) {
	case *protocol.Tversion:
		return h.version(ctx, m)
	case *protocol.Tauth:
		return nil, ErrAuthNotRequired
	case *protocol.Tattach:
		return h.attach(ctx, m)
	case *protocol.Tflush:
		// Requests are handled in order, by the time a Tflush is read the
		// request it names has already been answered.
		return &protocol.Rflush{}, nil
	case *protocol.Twalk:
		return h.walk(ctx, m)
	case *protocol.Topen:
		return h.open(ctx, m)
	case *protocol.Tcreate:
		return h.create(ctx, m)
	case *protocol.Tread:
		return h.read(ctx, m)
	case *protocol.Twrite:
		return h.write(ctx, m)
	case *protocol.Tclunk:
		return h.clunk(ctx, m)
	case *protocol.Tremove:
		return h.remove(ctx, m)
	case *protocol.Tstat:
		return h.stat(ctx, m)
	case *protocol.Twstat:
		return h.wstat(ctx, m)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpected, req.Type())
	}
}

func (h *Handler) version(ctx context.Context, m *protocol.Tversion) (protocol.Message, error) {
	if m.Msize < MinMsize {
		return nil, ErrMsizeTooSmall
	}

	msize := m.Msize
	if msize > h.srv.msize {
		msize = h.srv.msize
	}

	if err := h.reset(ctx); err != nil {
		h.log.Warn("Failed to clunk fids on version", zap.Error(err))
	}

	if m.Version != protocol.Version && !strings.HasPrefix(m.Version, protocol.Version+".") {
		return &protocol.Rversion{Msize: msize, Version: protocol.UnknownVersion}, nil
	}

	h.msize = msize
	return &protocol.Rversion{Msize: msize, Version: protocol.Version}, nil
}

func (h *Handler) attach(ctx context.Context, m *protocol.Tattach) (protocol.Message, error) {
	if m.Afid != protocol.NOFID {
		return nil, ErrAuthNotRequired
	}

	if m.Aname != "" && m.Aname != "/" {
		return nil, fmt.Errorf("%w: %q", ErrBadAttach, m.Aname)
	}

	root, err := h.srv.store.Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	qid := qidOf(root)
	if err := h.addFid(m.Fid, &fidState{qid: qid}); err != nil {
		return nil, err
	}

	return &protocol.Rattach{Qid: qid}, nil
}

func (h *Handler) walk(ctx context.Context, m *protocol.Twalk) (protocol.Message, error) {
	f, err := h.fid(m.Fid)
	if err != nil {
		return nil, err
	}

	if f.open {
		return nil, ErrFileOpen
	}

	if len(m.Wname) > protocol.MaxWalkElements {
		return nil, ErrTooManyNames
	}

	if m.Newfid != m.Fid {
		if m.Newfid == protocol.NOFID {
			return nil, ErrBadFid
		}

		if _, ok := h.fids[m.Newfid]; ok {
			return nil, ErrFidInUse
		}
	}

	path := append([]string(nil), f.path...)
	qid := f.qid
	wqids := make([]protocol.Qid, 0, len(m.Wname))

	for i, name := range m.Wname {
		entry, err := h.step(ctx, path, qid, name)
		if err != nil {
			if i == 0 {
				return nil, err
			}

			// A partial walk succeeds but leaves newfid unused
			return &protocol.Rwalk{Wqid: wqids}, nil
		}

		path = entry.Path
		qid = qidOf(entry)
		wqids = append(wqids, qid)
	}

	h.fids[m.Newfid] = &fidState{path: path, qid: qid}

	return &protocol.Rwalk{Wqid: wqids}, nil
}

func (h *Handler) step(ctx context.Context, path []string, qid protocol.Qid, name string) (*storage.Entry, error) {
	if !qid.IsDir() {
		return nil, storage.ErrNotDir
	}

	next := append(append(make([]string, 0, len(path)+1), path...), name)
	if name == ".." {
		next = next[:0]
		if len(path) > 0 {
			next = append(next, path[:len(path)-1]...)
		}
	}

	return h.srv.store.Get(ctx, next)
}

func (h *Handler) open(ctx context.Context, m *protocol.Topen) (protocol.Message, error) {
	f, err := h.fid(m.Fid)
	if err != nil {
		return nil, err
	}

	if f.open {
		return nil, ErrFileOpen
	}

	entry, err := h.srv.store.Get(ctx, f.path)
	if err != nil {
		return nil, err
	}

	if entry.Dir {
		if m.Mode.Access() != protocol.OREAD || m.Mode&protocol.OTRUNC != 0 {
			return nil, fmt.Errorf("%w: %s", ErrPermission, storage.ErrIsDir)
		}

		f.dir = &statList{}
	} else if m.Mode&protocol.OTRUNC != 0 {
		if !writable(m.Mode) {
			return nil, ErrPermission
		}

		if err := h.srv.store.Set(ctx, f.path, ""); err != nil {
			return nil, err
		}

		f.raw = !entry.Text
		if entry, err = h.srv.store.Get(ctx, f.path); err != nil {
			return nil, err
		}
	} else {
		f.raw = !entry.Text
	}

	f.open = true
	f.mode = m.Mode
	f.qid = qidOf(entry)

	return &protocol.Ropen{Qid: f.qid, Iounit: h.iounit()}, nil
}

func (h *Handler) create(ctx context.Context, m *protocol.Tcreate) (protocol.Message, error) {
	f, err := h.fid(m.Fid)
	if err != nil {
		return nil, err
	}

	if f.open {
		return nil, ErrFileOpen
	}

	if !f.qid.IsDir() {
		return nil, storage.ErrNotDir
	}

	path := append(append(make([]string, 0, len(f.path)+1), f.path...), m.Name)

	if m.Perm.IsDir() {
		if m.Mode.Access() != protocol.OREAD {
			return nil, ErrPermission
		}

		if err := h.srv.store.Mkdir(ctx, path); err != nil {
			return nil, err
		}
	} else {
		if _, err := h.srv.store.Get(ctx, path); err == nil {
			return nil, fmt.Errorf("%s: %w", m.Name, storage.ErrExist)
		}

		if err := h.srv.store.Set(ctx, path, ""); err != nil {
			return nil, err
		}
	}

	entry, err := h.srv.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	f.path = path
	f.qid = qidOf(entry)
	f.open = true
	f.mode = m.Mode
	f.raw = false
	if entry.Dir {
		f.dir = &statList{}
	}

	return &protocol.Rcreate{Qid: f.qid, Iounit: h.iounit()}, nil
}

func (h *Handler) read(ctx context.Context, m *protocol.Tread) (protocol.Message, error) {
	f, err := h.fid(m.Fid)
	if err != nil {
		return nil, err
	}

	if !f.open || f.mode.Access() == protocol.OWRITE {
		return nil, ErrFileNotOpen
	}

	count := m.Count
	if iounit := h.iounit(); count > iounit {
		count = iounit
	}

	if f.dir != nil {
		if m.Offset == 0 {
			stats, err := h.list(ctx, f.path)
			if err != nil {
				return nil, err
			}

			f.dir = &statList{stats: stats}
		}

		data, err := f.dir.read(count, m.Offset)
		if err != nil {
			return nil, err
		}

		return &protocol.Rread{Data: data}, nil
	}

	entry, err := h.srv.store.Get(ctx, f.path)
	if err != nil {
		return nil, err
	}

	size := uint64(len(entry.Content))
	if m.Offset >= size {
		return &protocol.Rread{}, nil
	}

	end := m.Offset + uint64(count)
	if end > size {
		end = size
	}

	return &protocol.Rread{Data: entry.Content[m.Offset:end]}, nil
}

func (h *Handler) write(ctx context.Context, m *protocol.Twrite) (protocol.Message, error) {
	f, err := h.fid(m.Fid)
	if err != nil {
		return nil, err
	}

	if !f.open || !writable(f.mode) {
		return nil, ErrFileNotOpen
	}

	if f.dir != nil {
		return nil, storage.ErrIsDir
	}

	entry, err := h.srv.store.Get(ctx, f.path)
	if err != nil {
		return nil, err
	}

	size := uint64(len(entry.Content))
	if m.Offset > size {
		return nil, ErrBadWriteOffset
	}

	end := m.Offset + uint64(len(m.Data))
	if end < size {
		end = size
	}

	content := make([]byte, end)
	copy(content, entry.Content)
	copy(content[m.Offset:], m.Data)

	if err := h.srv.store.Set(ctx, f.path, h.value(f, content)); err != nil {
		return nil, err
	}

	if entry, err = h.srv.store.Get(ctx, f.path); err == nil {
		f.qid = qidOf(entry)
	}

	return &protocol.Rwrite{Count: uint32(len(m.Data))}, nil
}

// value picks what a file's content is stored as. Files that held a number,
// boolean or null keep their JSON type as long as what is written parses as
// one.
func (h *Handler) value(f *fidState, content []byte) interface{} {
	if f.raw {
		trimmed := bytes.TrimSpace(content)
		if gjson.ValidBytes(trimmed) {
			switch gjson.ParseBytes(trimmed).Type {
			case gjson.Number, gjson.True, gjson.False, gjson.Null:
				return json.RawMessage(trimmed)
			}
		}
	}

	return string(content)
}

func (h *Handler) clunk(ctx context.Context, m *protocol.Tclunk) (protocol.Message, error) {
	f, err := h.fid(m.Fid)
	if err != nil {
		return nil, err
	}

	delete(h.fids, m.Fid)

	if err := h.closeFid(ctx, f); err != nil {
		return nil, err
	}

	return &protocol.Rclunk{}, nil
}

func (h *Handler) remove(ctx context.Context, m *protocol.Tremove) (protocol.Message, error) {
	f, err := h.fid(m.Fid)
	if err != nil {
		return nil, err
	}

	// The fid is clunked even if the remove fails
	delete(h.fids, m.Fid)

	if len(f.path) == 0 {
		return nil, ErrPermission
	}

	if err := h.srv.store.Delete(ctx, f.path); err != nil {
		return nil, err
	}

	return &protocol.Rremove{}, nil
}

func (h *Handler) stat(ctx context.Context, m *protocol.Tstat) (protocol.Message, error) {
	f, err := h.fid(m.Fid)
	if err != nil {
		return nil, err
	}

	entry, err := h.srv.store.Get(ctx, f.path)
	if err != nil {
		return nil, err
	}

	return &protocol.Rstat{Stat: h.srv.stat(entry)}, nil
}

func (h *Handler) wstat(ctx context.Context, m *protocol.Twstat) (protocol.Message, error) {
	f, err := h.fid(m.Fid)
	if err != nil {
		return nil, err
	}

	entry, err := h.srv.store.Get(ctx, f.path)
	if err != nil {
		return nil, err
	}

	st := m.Stat

	if st.Mode != ^protocol.FileMode(0) && st.Mode.IsDir() != entry.Dir {
		return nil, ErrBadWstat
	}

	truncate := false
	if st.Length != ^uint64(0) {
		switch {
		case entry.Dir && st.Length != 0:
			return nil, ErrPermission
		case !entry.Dir && st.Length != 0 && st.Length != uint64(len(entry.Content)):
			// Only truncation to zero is supported
			return nil, ErrPermission
		case !entry.Dir && st.Length == 0:
			truncate = true
		}
	}

	path := f.path
	if st.Name != "" && st.Name != entry.Name() {
		if len(path) == 0 {
			return nil, ErrPermission
		}

		if err := h.srv.store.Rename(ctx, path, st.Name); err != nil {
			return nil, err
		}

		path = append(append([]string{}, path[:len(path)-1]...), st.Name)
		h.renamed(f.path, path)
	}

	if truncate {
		if err := h.srv.store.Set(ctx, path, ""); err != nil {
			return nil, err
		}
	}

	return &protocol.Rwstat{}, nil
}

// renamed points every fid at or below from to the same place under to.
func (h *Handler) renamed(from, to []string) {
	for _, f := range h.fids {
		if len(f.path) < len(from) || !equalPaths(f.path[:len(from)], from) {
			continue
		}

		f.path = append(append([]string{}, to...), f.path[len(from):]...)
	}
}

func (h *Handler) list(ctx context.Context, path []string) ([]protocol.Stat, error) {
	entries, err := h.srv.store.List(ctx, path)
	if err != nil {
		return nil, err
	}

	stats := make([]protocol.Stat, 0, len(entries))
	for _, entry := range entries {
		stats = append(stats, h.srv.stat(entry))
	}

	return stats, nil
}

func (h *Handler) iounit() uint32 {
	return h.msize - protocol.IOHDRSIZE
}

func (h *Handler) fid(fid protocol.Fid) (*fidState, error) {
	f, ok := h.fids[fid]
	if !ok {
		return nil, ErrUnknownFid
	}

	return f, nil
}

func (h *Handler) addFid(fid protocol.Fid, f *fidState) error {
	if fid == protocol.NOFID {
		return ErrBadFid
	}

	if _, ok := h.fids[fid]; ok {
		return ErrFidInUse
	}

	h.fids[fid] = f
	return nil
}

func (h *Handler) closeFid(ctx context.Context, f *fidState) error {
	if f.open && f.mode&protocol.ORCLOSE != 0 && len(f.path) > 0 {
		return h.srv.store.Delete(ctx, f.path)
	}

	return nil
}

// reset must be called with mu held.
func (h *Handler) reset(ctx context.Context) (err error) {
	for fid, f := range h.fids {
		err = multierr.Append(err, h.closeFid(ctx, f))
		delete(h.fids, fid)
	}

	return err
}

func writable(mode protocol.OpenMode) bool {
	access := mode.Access()
	return access == protocol.OWRITE || access == protocol.ORDWR
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
