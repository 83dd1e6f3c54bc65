// Package client defines the RPC boundary the transaction coordinator
// consumes: the backing store's row-atomic coprocessor operations
// (themisGet, prewriteRow, commitRow, and their secondary-row variants).
// This module implements only the client-side contract; the server-side
// coprocessor and the shadow DATA/LOCK/WRITE column family layout are
// Non-goals (spec'd by family identity only) and are supplied by whatever
// backing store a deployment wires in. Grounded on the RPCClient seam in
// store/tikv (client.Client) and the themis Lock/LockManager interfaces
// in the reference go-themis client.
package client

import (
	"context"

	"github.com/pingcap/themis-go/column"
	"github.com/pingcap/themis-go/lock"
)

// FamilyKind classifies which shadow column family a cell's coordinate
// names. The coordinator treats family identity as the only thing it is
// allowed to know about the shadow layout (spec §6): a conflict lock
// returned during prewrite is legitimate only if its column is a DATA
// column, and DATA/LOCK/WRITE family bytes are otherwise opaque to it.
type FamilyKind int

const (
	// UnknownFamily is the zero value; a ConflictLock must never carry
	// this once returned from a real RPC client.
	UnknownFamily FamilyKind = iota
	DataFamily
	LockFamily
	WriteFamily
)

func (k FamilyKind) String() string {
	switch k {
	case DataFamily:
		return "DATA"
	case LockFamily:
		return "LOCK"
	case WriteFamily:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// ConflictLock is returned by a row-atomic prewrite RPC when the row-wide
// CAS failed because some column already carries a conflicting LOCK or a
// WRITE with commitTs >= startTs.
type ConflictLock struct {
	Lock   lock.Lock
	Family FamilyKind
}

// Get describes a snapshot read request for one or more columns in one
// row.
type Get struct {
	Row     []byte
	Columns []column.Coordinate
}

// Put describes a user write request: the columns to set, each with its
// value.
type Put struct {
	Row     []byte
	Columns []column.Coordinate
	Values  [][]byte
}

// Delete describes a user delete request naming the columns to remove.
// Kind distinguishes single-version delete from delete-all-versions.
type Delete struct {
	Row     []byte
	Columns []column.Coordinate
	Kinds   []column.Kind
}

// Cell is one resolved (or locked) cell returned by themisGet.
type Cell struct {
	Coordinate column.Coordinate
	Value      []byte
	Timestamp  uint64
	// IsLock is true when this cell surfaces a LOCK entry instead of a
	// resolved value, i.e. a conflict the coordinator must clean before
	// the read can be trusted.
	IsLock bool
	Lock   lock.Lock
}

// Result is the response to a themisGet call: zero or more cells, which
// may be a mix of resolved values and lock sentinels.
type Result struct {
	Cells []Cell
}

// IsLockResult reports whether r carries any lock sentinel cells, i.e.
// whether the read observed an unresolved conflicting transaction.
func IsLockResult(r *Result) bool {
	if r == nil {
		return false
	}
	for _, c := range r.Cells {
		if c.IsLock {
			return true
		}
	}
	return false
}

// LockCells returns just the lock sentinel cells in r, the input the
// coordinator passes to lockCleaner.tryToCleanLocks.
func LockCells(r *Result) []Cell {
	var out []Cell
	for _, c := range r.Cells {
		if c.IsLock {
			out = append(out, c)
		}
	}
	return out
}

// ThemisCpClient is the backing-store coprocessor client the coordinator
// drives. Every method is row-atomic at the server and may block on
// network I/O; implementations must be safe for concurrent use since the
// client is shared across transactions.
type ThemisCpClient interface {
	// ThemisGet performs a snapshot-aware read at startTs. When
	// ignoreLock is false, a conflicting LOCK surfaces as a lock-sentinel
	// cell in the result instead of being silently skipped.
	ThemisGet(ctx context.Context, table string, get *Get, startTs uint64, ignoreLock bool) (*Result, error)

	// PrewriteRow performs the primary row's prewrite: row-atomic CAS
	// writing DATA@startTs and LOCK for every mutated column in the row.
	// Returns nil on success, or a ConflictLock describing the column
	// that blocked the CAS.
	PrewriteRow(ctx context.Context, table string, row []byte, mutations []column.Mutation, startTs uint64,
		primaryLockBytes, secondaryLockBytesWithoutType []byte, primaryIndexInRow int) (*ConflictLock, error)

	// PrewriteSecondaryRow is PrewriteRow's secondary-row counterpart: no
	// primary lock payload, only the shared secondary lock bytes.
	PrewriteSecondaryRow(ctx context.Context, table string, row []byte, mutations []column.Mutation, startTs uint64,
		secondaryLockBytesWithoutType []byte) (*ConflictLock, error)

	// CommitRow commits the primary row: writes WRITE@commitTs for every
	// column pointing back to startTs, and erases the LOCK. Returns a
	// LOCK_CLEANED-classified error if the primary lock was already
	// erased by a peer's cleaner.
	CommitRow(ctx context.Context, table string, row []byte, mutations []column.Mutation, startTs, commitTs uint64,
		primaryIndexInRow int) error

	// CommitSecondaryRow is CommitRow's secondary-row counterpart.
	CommitSecondaryRow(ctx context.Context, table string, row []byte, mutations []column.Mutation, startTs, commitTs uint64) error
}
