// Package column implements the in-memory write buffer the transaction
// coordinator stages mutations into before a commit: column coordinates,
// single-column mutations, per-row mutation lists, and the deduplicating
// table/row/column buffer built on top of them. It mirrors the shape of
// org.apache.hadoop.hbase.themis.columns in the Java client this package
// was ported from, adapted to Go's value-type-keyed maps.
package column

import "bytes"

// Coordinate identifies a single cell by table, row and column. Two
// coordinates with byte-equal fields are the same cell regardless of
// pointer identity, so Coordinate is usable as a map key once reduced to
// its string form via Key.
type Coordinate struct {
	Table     []byte
	Row       []byte
	Family    []byte
	Qualifier []byte
}

// Equal reports whether c and other name the same cell.
func (c Coordinate) Equal(other Coordinate) bool {
	return bytes.Equal(c.Table, other.Table) &&
		bytes.Equal(c.Row, other.Row) &&
		bytes.Equal(c.Family, other.Family) &&
		bytes.Equal(c.Qualifier, other.Qualifier)
}

// Key returns a string usable as a map key that compares equal iff Equal
// would. It is the concatenation of the four fields with length-prefixed
// separators, which avoids ambiguity when a field itself contains the
// separator byte.
func (c Coordinate) Key() string {
	buf := make([]byte, 0, len(c.Table)+len(c.Row)+len(c.Family)+len(c.Qualifier)+8)
	buf = appendLenPrefixed(buf, c.Table)
	buf = appendLenPrefixed(buf, c.Row)
	buf = appendLenPrefixed(buf, c.Family)
	buf = appendLenPrefixed(buf, c.Qualifier)
	return string(buf)
}

func appendLenPrefixed(buf, field []byte) []byte {
	var lenBuf [4]byte
	n := uint32(len(field))
	lenBuf[0] = byte(n >> 24)
	lenBuf[1] = byte(n >> 16)
	lenBuf[2] = byte(n >> 8)
	lenBuf[3] = byte(n)
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func (c Coordinate) String() string {
	return string(c.Table) + "/" + string(c.Row) + "/" + string(c.Family) + "/" + string(c.Qualifier)
}
