package protocol

// Message is one 9P2000 message. The set of implementations is closed: one
// struct per message kind plus Raw for type codes without a known body.
type Message interface {
	Type() MessageType
	GetTag() Tag
	SetTag(tag Tag)

	encode(e *encoder)
	decode(d *decoder)
}

// newMessage returns an empty message for t, or nil when t has no
// structured body.
func newMessage(t MessageType) Message {
	switch t {
	case TypeTversion:
		return &Tversion{}
	case TypeRversion:
		return &Rversion{}
	case TypeTauth:
		return &Tauth{}
	case TypeRauth:
		return &Rauth{}
	case TypeTattach:
		return &Tattach{}
	case TypeRattach:
		return &Rattach{}
	case TypeRerror:
		return &Rerror{}
	case TypeTflush:
		return &Tflush{}
	case TypeRflush:
		return &Rflush{}
	case TypeTwalk:
		return &Twalk{}
	case TypeRwalk:
		return &Rwalk{}
	case TypeTopen:
		return &Topen{}
	case TypeRopen:
		return &Ropen{}
	case TypeTcreate:
		return &Tcreate{}
	case TypeRcreate:
		return &Rcreate{}
	case TypeTread:
		return &Tread{}
	case TypeRread:
		return &Rread{}
	case TypeTwrite:
		return &Twrite{}
	case TypeRwrite:
		return &Rwrite{}
	case TypeTclunk:
		return &Tclunk{}
	case TypeRclunk:
		return &Rclunk{}
	case TypeTremove:
		return &Tremove{}
	case TypeRremove:
		return &Rremove{}
	case TypeTstat:
		return &Tstat{}
	case TypeRstat:
		return &Rstat{}
	case TypeTwstat:
		return &Twstat{}
	case TypeRwstat:
		return &Rwstat{}
	}

	return nil
}

// Raw is a message whose type code has no known body. Only the header
// survives decoding.
type Raw struct {
	MsgType MessageType
	Tag     Tag
}

func (m *Raw) Type() MessageType { return m.MsgType }
func (m *Raw) GetTag() Tag       { return m.Tag }
func (m *Raw) SetTag(tag Tag)    { m.Tag = tag }
func (m *Raw) encode(e *encoder) {}
func (m *Raw) decode(d *decoder) {}

type Tversion struct {
	Tag     Tag
	Msize   uint32
	Version string
}

func (m *Tversion) Type() MessageType { return TypeTversion }
func (m *Tversion) GetTag() Tag       { return m.Tag }
func (m *Tversion) SetTag(tag Tag)    { m.Tag = tag }

func (m *Tversion) encode(e *encoder) {
	e.u32(m.Msize)
	e.str(m.Version)
}

func (m *Tversion) decode(d *decoder) {
	m.Msize = d.u32()
	m.Version = d.str()
}

type Rversion struct {
	Tag     Tag
	Msize   uint32
	Version string
}

func (m *Rversion) Type() MessageType { return TypeRversion }
func (m *Rversion) GetTag() Tag       { return m.Tag }
func (m *Rversion) SetTag(tag Tag)    { m.Tag = tag }

func (m *Rversion) encode(e *encoder) {
	e.u32(m.Msize)
	e.str(m.Version)
}

func (m *Rversion) decode(d *decoder) {
	m.Msize = d.u32()
	m.Version = d.str()
}

type Tauth struct {
	Tag   Tag
	Afid  Fid
	Uname string
	Aname string
}

func (m *Tauth) Type() MessageType { return TypeTauth }
func (m *Tauth) GetTag() Tag       { return m.Tag }
func (m *Tauth) SetTag(tag Tag)    { m.Tag = tag }

func (m *Tauth) encode(e *encoder) {
	e.fid(m.Afid)
	e.str(m.Uname)
	e.str(m.Aname)
}

func (m *Tauth) decode(d *decoder) {
	m.Afid = d.fid()
	m.Uname = d.str()
	m.Aname = d.str()
}

type Rauth struct {
	Tag  Tag
	Aqid Qid
}

func (m *Rauth) Type() MessageType { return TypeRauth }
func (m *Rauth) GetTag() Tag       { return m.Tag }
func (m *Rauth) SetTag(tag Tag)    { m.Tag = tag }
func (m *Rauth) encode(e *encoder) { e.qid(m.Aqid) }
func (m *Rauth) decode(d *decoder) { m.Aqid = d.qid() }

type Tattach struct {
	Tag   Tag
	Fid   Fid
	Afid  Fid
	Uname string
	Aname string
}

func (m *Tattach) Type() MessageType { return TypeTattach }
func (m *Tattach) GetTag() Tag       { return m.Tag }
func (m *Tattach) SetTag(tag Tag)    { m.Tag = tag }

func (m *Tattach) encode(e *encoder) {
	e.fid(m.Fid)
	e.fid(m.Afid)
	e.str(m.Uname)
	e.str(m.Aname)
}

func (m *Tattach) decode(d *decoder) {
	m.Fid = d.fid()
	m.Afid = d.fid()
	m.Uname = d.str()
	m.Aname = d.str()
}

type Rattach struct {
	Tag Tag
	Qid Qid
}

func (m *Rattach) Type() MessageType { return TypeRattach }
func (m *Rattach) GetTag() Tag       { return m.Tag }
func (m *Rattach) SetTag(tag Tag)    { m.Tag = tag }
func (m *Rattach) encode(e *encoder) { e.qid(m.Qid) }
func (m *Rattach) decode(d *decoder) { m.Qid = d.qid() }

type Rerror struct {
	Tag   Tag
	Ename string
}

func (m *Rerror) Type() MessageType { return TypeRerror }
func (m *Rerror) GetTag() Tag       { return m.Tag }
func (m *Rerror) SetTag(tag Tag)    { m.Tag = tag }
func (m *Rerror) encode(e *encoder) { e.str(m.Ename) }
func (m *Rerror) decode(d *decoder) { m.Ename = d.str() }

type Tflush struct {
	Tag    Tag
	Oldtag Tag
}

func (m *Tflush) Type() MessageType { return TypeTflush }
func (m *Tflush) GetTag() Tag       { return m.Tag }
func (m *Tflush) SetTag(tag Tag)    { m.Tag = tag }
func (m *Tflush) encode(e *encoder) { e.u16(uint16(m.Oldtag)) }
func (m *Tflush) decode(d *decoder) { m.Oldtag = Tag(d.u16()) }

type Rflush struct {
	Tag Tag
}

func (m *Rflush) Type() MessageType { return TypeRflush }
func (m *Rflush) GetTag() Tag       { return m.Tag }
func (m *Rflush) SetTag(tag Tag)    { m.Tag = tag }
func (m *Rflush) encode(e *encoder) {}
func (m *Rflush) decode(d *decoder) {}

type Twalk struct {
	Tag    Tag
	Fid    Fid
	Newfid Fid
	Wname  []string
}

func (m *Twalk) Type() MessageType { return TypeTwalk }
func (m *Twalk) GetTag() Tag       { return m.Tag }
func (m *Twalk) SetTag(tag Tag)    { m.Tag = tag }

func (m *Twalk) encode(e *encoder) {
	e.fid(m.Fid)
	e.fid(m.Newfid)
	e.count(len(m.Wname))
	for _, name := range m.Wname {
		e.str(name)
	}
}

func (m *Twalk) decode(d *decoder) {
	m.Fid = d.fid()
	m.Newfid = d.fid()
	n := int(d.u16())
	for i := 0; i < n && d.err == nil; i++ {
		m.Wname = append(m.Wname, d.str())
	}
}

type Rwalk struct {
	Tag  Tag
	Wqid []Qid
}

func (m *Rwalk) Type() MessageType { return TypeRwalk }
func (m *Rwalk) GetTag() Tag       { return m.Tag }
func (m *Rwalk) SetTag(tag Tag)    { m.Tag = tag }

func (m *Rwalk) encode(e *encoder) {
	e.count(len(m.Wqid))
	for _, qid := range m.Wqid {
		e.qid(qid)
	}
}

func (m *Rwalk) decode(d *decoder) {
	n := int(d.u16())
	for i := 0; i < n && d.err == nil; i++ {
		m.Wqid = append(m.Wqid, d.qid())
	}
}

type Topen struct {
	Tag  Tag
	Fid  Fid
	Mode OpenMode
}

func (m *Topen) Type() MessageType { return TypeTopen }
func (m *Topen) GetTag() Tag       { return m.Tag }
func (m *Topen) SetTag(tag Tag)    { m.Tag = tag }

func (m *Topen) encode(e *encoder) {
	e.fid(m.Fid)
	e.u8(uint8(m.Mode))
}

func (m *Topen) decode(d *decoder) {
	m.Fid = d.fid()
	m.Mode = OpenMode(d.u8())
}

type Ropen struct {
	Tag    Tag
	Qid    Qid
	Iounit uint32
}

func (m *Ropen) Type() MessageType { return TypeRopen }
func (m *Ropen) GetTag() Tag       { return m.Tag }
func (m *Ropen) SetTag(tag Tag)    { m.Tag = tag }

func (m *Ropen) encode(e *encoder) {
	e.qid(m.Qid)
	e.u32(m.Iounit)
}

func (m *Ropen) decode(d *decoder) {
	m.Qid = d.qid()
	m.Iounit = d.u32()
}

type Tcreate struct {
	Tag  Tag
	Fid  Fid
	Name string
	Perm FileMode
	Mode OpenMode
}

func (m *Tcreate) Type() MessageType { return TypeTcreate }
func (m *Tcreate) GetTag() Tag       { return m.Tag }
func (m *Tcreate) SetTag(tag Tag)    { m.Tag = tag }

func (m *Tcreate) encode(e *encoder) {
	e.fid(m.Fid)
	e.str(m.Name)
	e.u32(uint32(m.Perm))
	e.u8(uint8(m.Mode))
}

func (m *Tcreate) decode(d *decoder) {
	m.Fid = d.fid()
	m.Name = d.str()
	m.Perm = FileMode(d.u32())
	m.Mode = OpenMode(d.u8())
}

type Rcreate struct {
	Tag    Tag
	Qid    Qid
	Iounit uint32
}

func (m *Rcreate) Type() MessageType { return TypeRcreate }
func (m *Rcreate) GetTag() Tag       { return m.Tag }
func (m *Rcreate) SetTag(tag Tag)    { m.Tag = tag }

func (m *Rcreate) encode(e *encoder) {
	e.qid(m.Qid)
	e.u32(m.Iounit)
}

func (m *Rcreate) decode(d *decoder) {
	m.Qid = d.qid()
	m.Iounit = d.u32()
}

type Tread struct {
	Tag    Tag
	Fid    Fid
	Offset uint64
	Count  uint32
}

func (m *Tread) Type() MessageType { return TypeTread }
func (m *Tread) GetTag() Tag       { return m.Tag }
func (m *Tread) SetTag(tag Tag)    { m.Tag = tag }

func (m *Tread) encode(e *encoder) {
	e.fid(m.Fid)
	e.u64(m.Offset)
	e.u32(m.Count)
}

func (m *Tread) decode(d *decoder) {
	m.Fid = d.fid()
	m.Offset = d.u64()
	m.Count = d.u32()
}

// Rread carries the bytes read. The count[4] field is len(Data).
type Rread struct {
	Tag  Tag
	Data []byte
}

func (m *Rread) Type() MessageType { return TypeRread }
func (m *Rread) GetTag() Tag       { return m.Tag }
func (m *Rread) SetTag(tag Tag)    { m.Tag = tag }
func (m *Rread) encode(e *encoder) { e.data(m.Data) }
func (m *Rread) decode(d *decoder) { m.Data = d.data() }

// Twrite carries the bytes to write. The count[4] field is len(Data).
type Twrite struct {
	Tag    Tag
	Fid    Fid
	Offset uint64
	Data   []byte
}

func (m *Twrite) Type() MessageType { return TypeTwrite }
func (m *Twrite) GetTag() Tag       { return m.Tag }
func (m *Twrite) SetTag(tag Tag)    { m.Tag = tag }

func (m *Twrite) encode(e *encoder) {
	e.fid(m.Fid)
	e.u64(m.Offset)
	e.data(m.Data)
}

func (m *Twrite) decode(d *decoder) {
	m.Fid = d.fid()
	m.Offset = d.u64()
	m.Data = d.data()
}

type Rwrite struct {
	Tag   Tag
	Count uint32
}

func (m *Rwrite) Type() MessageType { return TypeRwrite }
func (m *Rwrite) GetTag() Tag       { return m.Tag }
func (m *Rwrite) SetTag(tag Tag)    { m.Tag = tag }
func (m *Rwrite) encode(e *encoder) { e.u32(m.Count) }
func (m *Rwrite) decode(d *decoder) { m.Count = d.u32() }

type Tclunk struct {
	Tag Tag
	Fid Fid
}

func (m *Tclunk) Type() MessageType { return TypeTclunk }
func (m *Tclunk) GetTag() Tag       { return m.Tag }
func (m *Tclunk) SetTag(tag Tag)    { m.Tag = tag }
func (m *Tclunk) encode(e *encoder) { e.fid(m.Fid) }
func (m *Tclunk) decode(d *decoder) { m.Fid = d.fid() }

type Rclunk struct {
	Tag Tag
}

func (m *Rclunk) Type() MessageType { return TypeRclunk }
func (m *Rclunk) GetTag() Tag       { return m.Tag }
func (m *Rclunk) SetTag(tag Tag)    { m.Tag = tag }
func (m *Rclunk) encode(e *encoder) {}
func (m *Rclunk) decode(d *decoder) {}

type Tremove struct {
	Tag Tag
	Fid Fid
}

func (m *Tremove) Type() MessageType { return TypeTremove }
func (m *Tremove) GetTag() Tag       { return m.Tag }
func (m *Tremove) SetTag(tag Tag)    { m.Tag = tag }
func (m *Tremove) encode(e *encoder) { e.fid(m.Fid) }
func (m *Tremove) decode(d *decoder) { m.Fid = d.fid() }

type Rremove struct {
	Tag Tag
}

func (m *Rremove) Type() MessageType { return TypeRremove }
func (m *Rremove) GetTag() Tag       { return m.Tag }
func (m *Rremove) SetTag(tag Tag)    { m.Tag = tag }
func (m *Rremove) encode(e *encoder) {}
func (m *Rremove) decode(d *decoder) {}

type Tstat struct {
	Tag Tag
	Fid Fid
}

func (m *Tstat) Type() MessageType { return TypeTstat }
func (m *Tstat) GetTag() Tag       { return m.Tag }
func (m *Tstat) SetTag(tag Tag)    { m.Tag = tag }
func (m *Tstat) encode(e *encoder) { e.fid(m.Fid) }
func (m *Tstat) decode(d *decoder) { m.Fid = d.fid() }

// Rstat's body is n[2] followed by one stat record, which carries its own
// size[2].
type Rstat struct {
	Tag  Tag
	Stat Stat
}

func (m *Rstat) Type() MessageType { return TypeRstat }
func (m *Rstat) GetTag() Tag       { return m.Tag }
func (m *Rstat) SetTag(tag Tag)    { m.Tag = tag }
func (m *Rstat) encode(e *encoder) { e.countedStat(&m.Stat) }
func (m *Rstat) decode(d *decoder) { d.countedStat(&m.Stat) }

type Twstat struct {
	Tag  Tag
	Fid  Fid
	Stat Stat
}

func (m *Twstat) Type() MessageType { return TypeTwstat }
func (m *Twstat) GetTag() Tag       { return m.Tag }
func (m *Twstat) SetTag(tag Tag)    { m.Tag = tag }

func (m *Twstat) encode(e *encoder) {
	e.fid(m.Fid)
	e.countedStat(&m.Stat)
}

func (m *Twstat) decode(d *decoder) {
	m.Fid = d.fid()
	d.countedStat(&m.Stat)
}

type Rwstat struct {
	Tag Tag
}

func (m *Rwstat) Type() MessageType { return TypeRwstat }
func (m *Rwstat) GetTag() Tag       { return m.Tag }
func (m *Rwstat) SetTag(tag Tag)    { m.Tag = tag }
func (m *Rwstat) encode(e *encoder) {}
func (m *Rwstat) decode(d *decoder) {}

var _ Message = (*Raw)(nil)
var _ Message = (*Tversion)(nil)
var _ Message = (*Rversion)(nil)
var _ Message = (*Tauth)(nil)
var _ Message = (*Rauth)(nil)
var _ Message = (*Tattach)(nil)
var _ Message = (*Rattach)(nil)
var _ Message = (*Rerror)(nil)
var _ Message = (*Tflush)(nil)
var _ Message = (*Rflush)(nil)
var _ Message = (*Twalk)(nil)
var _ Message = (*Rwalk)(nil)
var _ Message = (*Topen)(nil)
var _ Message = (*Ropen)(nil)
var _ Message = (*Tcreate)(nil)
var _ Message = (*Rcreate)(nil)
var _ Message = (*Tread)(nil)
var _ Message = (*Rread)(nil)
var _ Message = (*Twrite)(nil)
var _ Message = (*Rwrite)(nil)
var _ Message = (*Tclunk)(nil)
var _ Message = (*Rclunk)(nil)
var _ Message = (*Tremove)(nil)
var _ Message = (*Rremove)(nil)
var _ Message = (*Tstat)(nil)
var _ Message = (*Rstat)(nil)
var _ Message = (*Twstat)(nil)
var _ Message = (*Rwstat)(nil)
