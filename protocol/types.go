package protocol

import "fmt"

const (
	// Version is the only protocol version this package speaks.
	Version = "9P2000"

	// UnknownVersion is sent in an Rversion when the client's version is
	// not understood.
	UnknownVersion = "unknown"

	// HeaderSize is size[4] type[1] tag[2].
	HeaderSize = 4 + 1 + 2

	// IOHDRSIZE is the non-data overhead of a Twrite (and Rread) message.
	// The largest payload a read or write may carry is msize - IOHDRSIZE.
	IOHDRSIZE = 24

	// DefaultMsize is used to bound encoding before a version exchange has
	// negotiated anything else.
	DefaultMsize = 8192 + IOHDRSIZE

	// DefaultMaxFrameSize bounds inbound frames before negotiation.
	DefaultMaxFrameSize = 8 * 1024 * 1024

	// QidSize is type[1] version[4] path[8].
	QidSize = 13

	// MaxStringLen is the longest string that fits behind a 16 bit length.
	MaxStringLen = 1<<16 - 1

	// MaxWalkElements is the most names a single Twalk may carry.
	MaxWalkElements = 16
)

// Tag correlates a request with its response.
type Tag uint16

// Fid is a client chosen handle to a file on the server.
type Fid uint32

const (
	NOTAG Tag = 0xFFFF
	NOFID Fid = 0xFFFFFFFF
)

// QidType is the high byte of a file's mode, as carried in a Qid.
type QidType uint8

const (
	QTDIR    QidType = 0x80
	QTAPPEND QidType = 0x40
	QTEXCL   QidType = 0x20
	QTMOUNT  QidType = 0x10
	QTAUTH   QidType = 0x08
	QTTMP    QidType = 0x04
	QTFILE   QidType = 0x00
)

// FileMode holds permission and type bits of a Stat.
type FileMode uint32

const (
	DMDIR    FileMode = 0x80000000
	DMAPPEND FileMode = 0x40000000
	DMEXCL   FileMode = 0x20000000
	DMMOUNT  FileMode = 0x10000000
	DMAUTH   FileMode = 0x08000000
	DMTMP    FileMode = 0x04000000
	DMREAD   FileMode = 0x4
	DMWRITE  FileMode = 0x2
	DMEXEC   FileMode = 0x1
)

// QidType returns the qid type bits that correspond to the mode.
func (m FileMode) QidType() QidType {
	return QidType(m >> 24)
}

// IsDir reports whether DMDIR is set.
func (m FileMode) IsDir() bool {
	return m&DMDIR != 0
}

// OpenMode is the mode byte of Topen and Tcreate.
type OpenMode uint8

const (
	OREAD OpenMode = iota
	OWRITE
	ORDWR
	OEXEC

	OTRUNC  OpenMode = 0x10
	OCEXEC  OpenMode = 0x20
	ORCLOSE OpenMode = 0x40
)

// Access strips the flag bits leaving OREAD, OWRITE, ORDWR or OEXEC.
func (m OpenMode) Access() OpenMode {
	return m & 3
}

// Qid is the server's identity for a file.
type Qid struct {
	Type    QidType
	Version uint32
	Path    uint64
}

// IsDir reports whether the qid names a directory.
func (q Qid) IsDir() bool {
	return q.Type&QTDIR != 0
}

func (q Qid) String() string {
	return fmt.Sprintf("(%x %d %#x)", q.Path, q.Version, uint8(q.Type))
}

// Stat is a directory entry.
type Stat struct {
	Type   uint16
	Dev    uint32
	Qid    Qid
	Mode   FileMode
	Atime  uint32
	Mtime  uint32
	Length uint64
	Name   string
	Uid    string
	Gid    string
	Muid   string
}

// statFixedLen is everything in a stat record after its size[2] prefix
// except the four strings' bytes.
const statFixedLen = 2 + 4 + QidSize + 4 + 4 + 4 + 8 + 4*2

// Size is the number of bytes the record occupies on the wire, including
// its own size[2] prefix.
func (s *Stat) Size() int {
	return 2 + statFixedLen + len(s.Name) + len(s.Uid) + len(s.Gid) + len(s.Muid)
}

// NewWstat returns a Stat with every field set to its "don't touch" value,
// ready to be filled in for a Twstat.
func NewWstat() Stat {
	return Stat{
		Type:   ^uint16(0),
		Dev:    ^uint32(0),
		Qid:    Qid{Type: ^QidType(0), Version: ^uint32(0), Path: ^uint64(0)},
		Mode:   ^FileMode(0),
		Atime:  ^uint32(0),
		Mtime:  ^uint32(0),
		Length: ^uint64(0),
	}
}
