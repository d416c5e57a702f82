package protocol

import (
	"encoding/binary"
	"fmt"
)

// decoder walks a byte slice. The first failure sticks and every later read
// returns a zero value.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}

	if n < 0 || len(d.buf)-d.off < n {
		d.err = fmt.Errorf("need %d bytes at offset %d, have %d: %w",
			n, d.off, len(d.buf)-d.off, ErrTruncatedField)
		return nil
	}

	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}

	return b[0]
}

func (d *decoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	lo := d.u32()
	hi := d.u32()
	return uint64(hi)<<32 | uint64(lo)
}

func (d *decoder) fid() Fid {
	return Fid(d.u32())
}

func (d *decoder) str() string {
	n := d.u16()
	return string(d.take(int(n)))
}

// data reads count[4] followed by that many bytes. The result does not
// alias the frame.
func (d *decoder) data() []byte {
	n := d.u32()
	if uint64(n) > uint64(len(d.buf)-d.off) {
		d.take(len(d.buf) - d.off + 1)
		return nil
	}

	b := d.take(int(n))
	if len(b) == 0 {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (d *decoder) qid() Qid {
	var q Qid
	q.Type = QidType(d.u8())
	q.Version = d.u32()
	q.Path = d.u64()
	return q
}

// stat reads one record. Bytes between the last field and the end declared
// by size[2] are skipped.
func (d *decoder) stat(s *Stat) {
	n := d.u16()
	record := d.take(int(n))
	if d.err != nil {
		return
	}

	r := decoder{buf: record}
	s.Type = r.u16()
	s.Dev = r.u32()
	s.Qid = r.qid()
	s.Mode = FileMode(r.u32())
	s.Atime = r.u32()
	s.Mtime = r.u32()
	s.Length = r.u64()
	s.Name = r.str()
	s.Uid = r.str()
	s.Gid = r.str()
	s.Muid = r.str()

	if r.err != nil {
		d.err = fmt.Errorf("stat record: %w", r.err)
	}
}

func (d *decoder) countedStat(s *Stat) {
	n := d.u16()
	body := d.take(int(n))
	if d.err != nil {
		return
	}

	r := decoder{buf: body}
	r.stat(s)
	if r.err != nil {
		d.err = r.err
	}
}

// Decode parses exactly one complete frame, size field included.
//
// Type codes with no known body decode to a *Raw carrying only the type and
// tag. Any failure after the header has been read is a *DecodeError.
func Decode(frame []byte) (Message, error) {
	if len(frame) < HeaderSize {
		return nil, fmt.Errorf("%d bytes: %w", len(frame), ErrFrameTooShort)
	}

	size := binary.LittleEndian.Uint32(frame[0:4])
	if uint64(size) != uint64(len(frame)) {
		return nil, fmt.Errorf("declared %d bytes, got %d: %w", size, len(frame), ErrFrameTooShort)
	}

	t := MessageType(frame[4])
	tag := Tag(binary.LittleEndian.Uint16(frame[5:7]))

	m := newMessage(t)
	if m == nil {
		return &Raw{MsgType: t, Tag: tag}, nil
	}

	m.SetTag(tag)

	d := decoder{buf: frame[HeaderSize:]}
	m.decode(&d)
	if d.err != nil {
		return nil, &DecodeError{Type: t, Tag: tag, Err: d.err}
	}

	return m, nil
}

// UnmarshalStat decodes a single stat record, size[2] included.
func UnmarshalStat(b []byte) (Stat, error) {
	var s Stat

	d := decoder{buf: b}
	d.stat(&s)
	return s, d.err
}

// UnmarshalStats decodes the concatenated stat records returned by reading
// a directory.
func UnmarshalStats(b []byte) ([]Stat, error) {
	var stats []Stat

	d := decoder{buf: b}
	for d.err == nil && d.off < len(d.buf) {
		var s Stat
		d.stat(&s)
		if d.err != nil {
			break
		}
		stats = append(stats, s)
	}

	return stats, d.err
}
