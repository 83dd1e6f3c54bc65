package column

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferAddDeduplicatesLastWriteWins(t *testing.T) {
	b := NewBuffer()
	table, row := []byte("t1"), []byte("r1")
	fam, qual := []byte("cf"), []byte("q")

	b.Add(table, row, KeyValue{Family: fam, Qualifier: qual, Kind: Put, Value: []byte("v1")})
	b.Add(table, row, KeyValue{Family: fam, Qualifier: qual, Kind: Put, Value: []byte("v2")})

	assert.Equal(t, 1, b.RowCount())
	rm, ok := b.Row(table, row)
	assert.True(t, ok)
	assert.Equal(t, 1, rm.Len())

	c := Coordinate{Table: table, Row: row, Family: fam, Qualifier: qual}
	m, ok := rm.Get(c)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), m.Value)
}

func TestBufferTracksMultipleRowsInInsertionOrder(t *testing.T) {
	b := NewBuffer()
	table := []byte("t1")
	b.Add(table, []byte("r2"), KeyValue{Family: []byte("cf"), Qualifier: []byte("q"), Kind: Put, Value: []byte("x")})
	b.Add(table, []byte("r1"), KeyValue{Family: []byte("cf"), Qualifier: []byte("q"), Kind: Put, Value: []byte("y")})

	rows := b.Rows()
	assert.Len(t, rows, 2)
	assert.Equal(t, []byte("r2"), rows[0].Row)
	assert.Equal(t, []byte("r1"), rows[1].Row)
	assert.Equal(t, 2, b.ColumnCount())
}

func TestRowMutationWithoutValuesStripsPutsOnly(t *testing.T) {
	rm := NewRowMutation([]byte("t1"), []byte("r1"))
	rm.Add(KeyValue{Family: []byte("cf"), Qualifier: []byte("p"), Kind: Put, Value: []byte("v")})
	rm.Add(KeyValue{Family: []byte("cf"), Qualifier: []byte("d"), Kind: Delete})

	stripped := rm.WithoutValues()
	for _, m := range stripped.Mutations() {
		assert.Nil(t, m.Value)
	}
	assert.Equal(t, 2, stripped.Len())
}

func TestCoordinateKeyDistinguishesFieldBoundaries(t *testing.T) {
	c1 := Coordinate{Table: []byte("ab"), Row: []byte("cd")}
	c2 := Coordinate{Table: []byte("a"), Row: []byte("bcd")}
	assert.NotEqual(t, c1.Key(), c2.Key())
	assert.False(t, c1.Equal(c2))
}

func TestKindOfReturnsFalseForUnbufferedColumn(t *testing.T) {
	b := NewBuffer()
	table, row := []byte("t1"), []byte("r1")
	fam, qual := []byte("cf"), []byte("q")
	b.Add(table, row, KeyValue{Family: fam, Qualifier: qual, Kind: Delete})

	c := Coordinate{Table: table, Row: row, Family: fam, Qualifier: qual}
	kind, ok := b.KindOf(c)
	assert.True(t, ok)
	assert.Equal(t, Delete, kind)

	_, ok = b.KindOf(Coordinate{Table: table, Row: row, Family: fam, Qualifier: []byte("other")})
	assert.False(t, ok)
}
