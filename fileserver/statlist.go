package fileserver

import "github.com/luma/ninep/protocol"

// statList serves directory reads. Reads must start at offset 0 or where the
// previous read stopped, and only return whole stat records.
type statList struct {
	offset uint64
	stats  []protocol.Stat
}

func (sl *statList) read(count uint32, off uint64) ([]byte, error) {
	if off != sl.offset {
		return nil, ErrBadReadOffset
	}

	var buf []byte
	for len(sl.stats) > 0 {
		st := &sl.stats[0]
		if len(buf)+st.Size() > int(count) {
			if len(buf) == 0 {
				return nil, ErrShortRead
			}
			break
		}

		packed, err := protocol.MarshalStat(st)
		if err != nil {
			return nil, err
		}

		buf = append(buf, packed...)
		sl.stats = sl.stats[1:]
	}

	sl.offset += uint64(len(buf))
	return buf, nil
}
