package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/pingcap/themis-go/column"
)

func TestEncodeDecodeRoundTripsPrimaryLock(t *testing.T) {
	primary := column.Coordinate{Table: []byte("t"), Row: []byte("r"), Family: []byte("cf"), Qualifier: []byte("q1")}
	sec := column.Coordinate{Table: []byte("t"), Row: []byte("r"), Family: []byte("cf"), Qualifier: []byte("q2")}
	l := &Lock{
		Coordinate:  primary,
		StartTS:     42,
		Role:        RolePrimary,
		Kind:        column.Put,
		Primary:     primary,
		Secondaries: []column.Coordinate{sec},
	}

	buf := l.Encode(true)
	decoded, withType, err := Decode(buf)
	assert.NoError(t, err)
	assert.True(t, withType)
	assert.Equal(t, uint64(42), decoded.StartTS)
	assert.Equal(t, RolePrimary, decoded.Role)
	assert.Equal(t, column.Put, decoded.Kind)
	assert.True(t, decoded.Primary.Equal(primary))
	assert.Len(t, decoded.Secondaries, 1)
	assert.True(t, decoded.Secondaries[0].Equal(sec))
}

func TestEncodeWithoutTypeOmitsKindByte(t *testing.T) {
	primary := column.Coordinate{Table: []byte("t"), Row: []byte("r"), Family: []byte("cf"), Qualifier: []byte("q1")}
	l := &Lock{StartTS: 7, Role: RoleSecondary, Kind: column.Delete, Primary: primary}

	buf := l.Encode(false)
	decoded, withType, err := Decode(buf)
	assert.NoError(t, err)
	assert.False(t, withType)
	assert.Equal(t, column.Kind(0), decoded.Kind)
}

func TestWithoutTypeZeroesKind(t *testing.T) {
	l := &Lock{Kind: column.DeleteColumn}
	clone := l.WithoutType()
	assert.Equal(t, column.Kind(0), clone.Kind)
	assert.Equal(t, column.DeleteColumn, l.Kind)
}
