package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLockResultDetectsLockCells(t *testing.T) {
	assert.False(t, IsLockResult(nil))
	assert.False(t, IsLockResult(&Result{}))
	assert.True(t, IsLockResult(&Result{Cells: []Cell{{IsLock: true}}}))
}

func TestLockCellsFiltersNonLockEntries(t *testing.T) {
	r := &Result{Cells: []Cell{{IsLock: false}, {IsLock: true}, {IsLock: true}}}
	assert.Len(t, LockCells(r), 2)
}

func TestFamilyKindString(t *testing.T) {
	assert.Equal(t, "DATA", DataFamily.String())
	assert.Equal(t, "LOCK", LockFamily.String())
	assert.Equal(t, "WRITE", WriteFamily.String())
	assert.Equal(t, "UNKNOWN", UnknownFamily.String())
}
