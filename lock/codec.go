package lock

import (
	"encoding/binary"

	"github.com/pingcap/themis-go/column"
	"github.com/pingcap/themis-go/themiserr"
)

// Decode is the inverse of Lock.Encode. It reports via withType whether a
// kind byte was present, since a decoded secondary lock must not be
// treated as carrying kind 0 (Put) when really it carried none at all.
func Decode(buf []byte) (l Lock, withType bool, err error) {
	r := byteReader{buf: buf}

	l.StartTS, err = r.uint64()
	if err != nil {
		return Lock{}, false, err
	}
	roleByte, err := r.byte1()
	if err != nil {
		return Lock{}, false, err
	}
	l.Role = Role(roleByte)

	kindByte, err := r.byte1()
	if err != nil {
		return Lock{}, false, err
	}
	if kindByte == 0 {
		withType = false
	} else {
		withType = true
		l.Kind = column.Kind(kindByte - 1)
	}

	wallTime, err := r.uint64()
	if err != nil {
		return Lock{}, false, err
	}
	l.WallTime = int64(wallTime)

	if l.ClientAddress, err = r.bytes(); err != nil {
		return Lock{}, false, err
	}

	if l.Primary.Table, err = r.bytes(); err != nil {
		return Lock{}, false, err
	}
	if l.Primary.Row, err = r.bytes(); err != nil {
		return Lock{}, false, err
	}
	if l.Primary.Family, err = r.bytes(); err != nil {
		return Lock{}, false, err
	}
	if l.Primary.Qualifier, err = r.bytes(); err != nil {
		return Lock{}, false, err
	}

	n, err := r.uint32()
	if err != nil {
		return Lock{}, false, err
	}
	l.Secondaries = make([]column.Coordinate, 0, n)
	for i := uint32(0); i < n; i++ {
		var c column.Coordinate
		if c.Table, err = r.bytes(); err != nil {
			return Lock{}, false, err
		}
		if c.Row, err = r.bytes(); err != nil {
			return Lock{}, false, err
		}
		if c.Family, err = r.bytes(); err != nil {
			return Lock{}, false, err
		}
		if c.Qualifier, err = r.bytes(); err != nil {
			return Lock{}, false, err
		}
		l.Secondaries = append(l.Secondaries, c)
	}
	return l, withType, nil
}

type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) need(n int) error {
	if len(r.buf)-r.off < n {
		return themiserr.New(themiserr.KindFatal, "lock: truncated buffer")
	}
	return nil
}

func (r *byteReader) byte1() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *byteReader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *byteReader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *byteReader) bytes() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	if n == 0 {
		return nil, nil
	}
	return b, nil
}
