package protocol

import (
	"encoding/binary"
	"fmt"
)

type encoder struct {
	buf []byte
	err error
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) u16(v uint16) {
	e.buf = append(e.buf, byte(v), byte(v>>8))
}

func (e *encoder) u32(v uint32) {
	e.buf = append(e.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// u64 is written as two 32 bit words, low word first.
func (e *encoder) u64(v uint64) {
	e.u32(uint32(v))
	e.u32(uint32(v >> 32))
}

func (e *encoder) fid(f Fid) {
	e.u32(uint32(f))
}

func (e *encoder) str(s string) {
	if len(s) > MaxStringLen {
		e.fail(fmt.Errorf("%d bytes: %w", len(s), ErrStringTooLong))
		return
	}

	e.u16(uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) count(n int) {
	if n > 0xFFFF {
		e.fail(fmt.Errorf("%d elements: %w", n, ErrArrayTooLong))
		return
	}

	e.u16(uint16(n))
}

func (e *encoder) data(b []byte) {
	if uint64(len(b)) > 0xFFFFFFFF {
		e.fail(fmt.Errorf("%d bytes of data: %w", len(b), ErrEncodingOverflow))
		return
	}

	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) qid(q Qid) {
	e.u8(uint8(q.Type))
	e.u32(q.Version)
	e.u64(q.Path)
}

// stat writes a stat record and backpatches its size[2] with the number of
// bytes that follow it.
func (e *encoder) stat(s *Stat) {
	start := len(e.buf)
	e.u16(0)
	e.u16(s.Type)
	e.u32(s.Dev)
	e.qid(s.Qid)
	e.u32(uint32(s.Mode))
	e.u32(s.Atime)
	e.u32(s.Mtime)
	e.u64(s.Length)
	e.str(s.Name)
	e.str(s.Uid)
	e.str(s.Gid)
	e.str(s.Muid)
	e.backpatch16(start)
}

// countedStat writes the n[2] that Rstat and Twstat put in front of the
// stat record.
func (e *encoder) countedStat(s *Stat) {
	start := len(e.buf)
	e.u16(0)
	e.stat(s)
	e.backpatch16(start)
}

func (e *encoder) backpatch16(at int) {
	n := len(e.buf) - at - 2
	if n > 0xFFFF {
		e.fail(fmt.Errorf("stat record of %d bytes: %w", n, ErrEncodingOverflow))
		return
	}

	binary.LittleEndian.PutUint16(e.buf[at:at+2], uint16(n))
}

// Encode serialises m into one complete frame no larger than msize. A zero
// msize means DefaultMsize.
//
// Encode only reads m. Negotiating msize is the Session's job.
func Encode(m Message, msize uint32) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("nil message: %w", ErrUnknownType)
	}

	t := m.Type()
	if _, ok := m.(*Raw); ok && newMessage(t) != nil {
		return nil, fmt.Errorf("%s: %w", t, ErrRawTypeConflict)
	}

	if msize == 0 {
		msize = DefaultMsize
	}

	e := encoder{buf: make([]byte, 0, sizeHint(m))}
	e.u32(0) // size, backpatched below
	e.u8(uint8(t))
	e.u16(uint16(m.GetTag()))
	m.encode(&e)

	if e.err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", t, e.err)
	}

	if uint64(len(e.buf)) > uint64(msize) {
		return nil, fmt.Errorf("%s is %d bytes, msize is %d: %w",
			t, len(e.buf), msize, ErrEncodingOverflow)
	}

	binary.LittleEndian.PutUint32(e.buf[0:4], uint32(len(e.buf)))

	return e.buf, nil
}

func sizeHint(m Message) int {
	switch m := m.(type) {
	case *Rread:
		return HeaderSize + 4 + len(m.Data)
	case *Twrite:
		return HeaderSize + 4 + 8 + 4 + len(m.Data)
	}

	return 64
}

// MarshalStat encodes a single stat record, size[2] included, as found in
// the data of a directory read.
func MarshalStat(s *Stat) ([]byte, error) {
	e := encoder{buf: make([]byte, 0, s.Size())}
	e.stat(s)
	if e.err != nil {
		return nil, e.err
	}

	return e.buf, nil
}
