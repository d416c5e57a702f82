package client

import (
	"context"
	"io"

	"github.com/luma/ninep/protocol"
)

// File is a fid on the server. Read, Write and Seek make an open File an
// io.ReadWriteSeeker, using a background context.
type File struct {
	c      *Conn
	fid    protocol.Fid
	qid    protocol.Qid
	iounit uint32
	offset uint64
}

func (f *File) Fid() protocol.Fid {
	return f.fid
}

func (f *File) Qid() protocol.Qid {
	return f.qid
}

// Walk returns a new File for the path names lead to from f. Names are
// limited to protocol.MaxWalkElements, no names clones f.
func (f *File) Walk(ctx context.Context, names ...string) (*File, error) {
	if len(names) > protocol.MaxWalkElements {
		return nil, ErrTooManyNames
	}

	newfid := f.c.allocFid()

	resp, err := f.c.rpc(ctx, &protocol.Twalk{Fid: f.fid, Newfid: newfid, Wname: names})
	if err != nil {
		f.c.freeFid(newfid)
		return nil, err
	}

	wqid := resp.(*protocol.Rwalk).Wqid
	if len(wqid) != len(names) {
		// newfid was not created by a partial walk
		f.c.freeFid(newfid)
		return nil, ErrWalkIncomplete
	}

	qid := f.qid
	if len(wqid) > 0 {
		qid = wqid[len(wqid)-1]
	}

	return &File{c: f.c, fid: newfid, qid: qid}, nil
}

func (f *File) Open(ctx context.Context, mode protocol.OpenMode) error {
	resp, err := f.c.rpc(ctx, &protocol.Topen{Fid: f.fid, Mode: mode})
	if err != nil {
		return err
	}

	ropen := resp.(*protocol.Ropen)
	f.qid = ropen.Qid
	f.iounit = ropen.Iounit
	f.offset = 0

	return nil
}

// Create makes name in the directory f refers to. Afterwards f refers to
// the new file, opened with mode.
func (f *File) Create(ctx context.Context, name string, perm protocol.FileMode, mode protocol.OpenMode) error {
	resp, err := f.c.rpc(ctx, &protocol.Tcreate{Fid: f.fid, Name: name, Perm: perm, Mode: mode})
	if err != nil {
		return err
	}

	rcreate := resp.(*protocol.Rcreate)
	f.qid = rcreate.Qid
	f.iounit = rcreate.Iounit
	f.offset = 0

	return nil
}

// maxIO is the largest count a single read or write may carry.
func (f *File) maxIO() uint32 {
	n := f.c.msize - protocol.IOHDRSIZE
	if f.iounit > 0 && f.iounit < n {
		n = f.iounit
	}

	return n
}

// ReadAt issues one Tread. It returns io.EOF when the server has no more
// data at off.
func (f *File) ReadAt(ctx context.Context, p []byte, off uint64) (int, error) {
	count := uint32(len(p))
	if limit := f.maxIO(); count > limit {
		count = limit
	}

	resp, err := f.c.rpc(ctx, &protocol.Tread{Fid: f.fid, Offset: off, Count: count})
	if err != nil {
		return 0, err
	}

	data := resp.(*protocol.Rread).Data
	if uint32(len(data)) > count {
		return 0, ErrBadResponse
	}

	if len(data) == 0 && count > 0 {
		return 0, io.EOF
	}

	return copy(p, data), nil
}

// WriteAt writes all of p starting at off, split into as many Twrites as
// msize requires.
func (f *File) WriteAt(ctx context.Context, p []byte, off uint64) (int, error) {
	n := 0
	for len(p) > 0 {
		chunk := p
		if limit := f.maxIO(); uint32(len(chunk)) > limit {
			chunk = chunk[:limit]
		}

		resp, err := f.c.rpc(ctx, &protocol.Twrite{Fid: f.fid, Offset: off + uint64(n), Data: chunk})
		if err != nil {
			return n, err
		}

		count := int(resp.(*protocol.Rwrite).Count)
		if count == 0 || count > len(chunk) {
			return n, io.ErrShortWrite
		}

		p = p[count:]
		n += count
	}

	return n, nil
}

// ReadAll reads from offset 0 until the server returns no data.
func (f *File) ReadAll(ctx context.Context) ([]byte, error) {
	var (
		data []byte
		buf  = make([]byte, f.maxIO())
	)

	for {
		n, err := f.ReadAt(ctx, buf, uint64(len(data)))
		data = append(data, buf[:n]...)

		if err == io.EOF {
			return data, nil
		}

		if err != nil {
			return nil, err
		}
	}
}

// ReadDir reads every entry of an open directory. Each read asks for a
// full msize so that whole stat records always fit.
func (f *File) ReadDir(ctx context.Context) ([]protocol.Stat, error) {
	data, err := f.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	return protocol.UnmarshalStats(data)
}

func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(context.Background(), p, f.offset)
	f.offset += uint64(n)

	return n, err
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.WriteAt(context.Background(), p, f.offset)
	f.offset += uint64(n)

	return n, err
}

// Seek only supports io.SeekStart and io.SeekCurrent, the server is not
// asked for the file's length.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = uint64(offset)
	case io.SeekCurrent:
		f.offset = uint64(int64(f.offset) + offset)
	default:
		return int64(f.offset), ErrUnsupportedWhence
	}

	return int64(f.offset), nil
}

func (f *File) Stat(ctx context.Context) (protocol.Stat, error) {
	resp, err := f.c.rpc(ctx, &protocol.Tstat{Fid: f.fid})
	if err != nil {
		return protocol.Stat{}, err
	}

	return resp.(*protocol.Rstat).Stat, nil
}

// Wstat changes the fields of st that are not set to their "don't touch"
// values, see protocol.NewWstat.
func (f *File) Wstat(ctx context.Context, st protocol.Stat) error {
	_, err := f.c.rpc(ctx, &protocol.Twstat{Fid: f.fid, Stat: st})
	return err
}

// Clunk releases the fid.
func (f *File) Clunk(ctx context.Context) error {
	_, err := f.c.rpc(ctx, &protocol.Tclunk{Fid: f.fid})
	f.c.freeFid(f.fid)

	return err
}

// Remove deletes the file and releases the fid, even if the remove fails.
func (f *File) Remove(ctx context.Context) error {
	_, err := f.c.rpc(ctx, &protocol.Tremove{Fid: f.fid})
	f.c.freeFid(f.fid)

	return err
}

func (f *File) Close() error {
	return f.Clunk(context.Background())
}

var _ io.ReadWriteSeeker = (*File)(nil)
