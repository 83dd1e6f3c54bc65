// Package lock models the Themis row lock: the value the coordinator
// writes into the LOCK family during prewrite, and that a peer's lock
// cleaner reads back when it finds a conflicting lock. It is ported from
// the Lock/LockRole interface of the reference go-themis client, adapted
// to a concrete struct since this module has a single lock representation
// rather than pluggable storage backends.
package lock

import (
	"encoding/binary"

	"github.com/pingcap/themis-go/column"
)

// Role distinguishes a transaction's primary lock from its secondary
// locks, determining how a conflict is resolved: a primary lock's
// presence or absence after prewriteTs's TTL decides the whole
// transaction's fate, while a secondary lock's fate is decided by asking
// the primary.
type Role int

const (
	// RolePrimary marks the lock anchoring the transaction's outcome.
	RolePrimary Role = iota
	// RoleSecondary marks a lock whose fate follows the primary's.
	RoleSecondary
)

func (r Role) String() string {
	if r == RolePrimary {
		return "primary"
	}
	return "secondary"
}

// Lock is the payload written to LOCK@startTs for one column. A primary
// lock additionally carries every secondary coordinate, so a peer that
// encounters any lock belonging to this transaction can walk to all of
// them; a secondary lock carries only the primary's coordinate.
type Lock struct {
	Coordinate column.Coordinate
	StartTS    uint64
	Role       Role
	Kind       column.Kind

	// WallTime is the wall-clock millisecond timestamp the owning
	// transaction snapshotted at commit() entry, embedded so a remote
	// cleaner can judge TTL expiry independently of the timestamp oracle.
	WallTime int64

	// ClientAddress identifies the worker that owns this lock, as issued
	// by that worker's registry.RegisterWorker.
	ClientAddress []byte

	// Primary is the primary column's coordinate. Set on every lock,
	// including the primary's own (which points at itself).
	Primary column.Coordinate

	// Secondaries holds every other column written by this transaction.
	// Populated only on the primary lock; nil on secondary locks.
	Secondaries []column.Coordinate
}

// IsPrimary reports whether this lock is the transaction's primary.
func (l *Lock) IsPrimary() bool { return l.Role == RolePrimary }

// TTLExpired reports whether the lock, discovered at wall-clock time
// nowMillis, has outlived ttlMillis since its owner snapshotted
// WallTime. The lock cleaner uses this to decide whether a primary lock's
// transaction can be judged dead.
func (l *Lock) TTLExpired(nowMillis, ttlMillis int64) bool {
	return nowMillis-l.WallTime > ttlMillis
}

// WithoutType returns a copy of l whose Kind has been zeroed. Secondary
// locks are transmitted to the server without their kind byte: the server
// already knows each column's mutation kind from the prewrite batch that
// carried it, and re-deriving it from the lock would let a corrupted kind
// byte silently misclassify a write. Grounded on
// Transaction.java's secondaryLockBytesWithoutType/constructSecondaryLock
// asymmetry versus the primary lock's full toByte(withType).
func (l *Lock) WithoutType() Lock {
	clone := *l
	clone.Kind = 0
	return clone
}

// encode/decode use a minimal length-prefixed binary layout; real
// deployments would use whatever the server's RPC framing expects. The
// prewrite RPCs of client.ThemisCpClient take lock payloads as these
// encoded bytes (mockclient decodes them), while ConflictLock and lock
// cells hand Lock values back directly.

// Encode serializes l. When withType is false the kind byte position is
// written as 0 (no kind) instead of the kind, matching the secondary-lock
// wire contract.
func (l *Lock) Encode(withType bool) []byte {
	buf := make([]byte, 0, 64)
	buf = appendUint64(buf, l.StartTS)
	buf = appendByte(buf, byte(l.Role))
	if withType {
		buf = appendByte(buf, byte(l.Kind)+1)
	} else {
		buf = appendByte(buf, 0)
	}
	buf = appendUint64(buf, uint64(l.WallTime))
	buf = appendBytes(buf, l.ClientAddress)
	buf = appendBytes(buf, l.Primary.Table)
	buf = appendBytes(buf, l.Primary.Row)
	buf = appendBytes(buf, l.Primary.Family)
	buf = appendBytes(buf, l.Primary.Qualifier)
	buf = appendUint32(buf, uint32(len(l.Secondaries)))
	for _, s := range l.Secondaries {
		buf = appendBytes(buf, s.Table)
		buf = appendBytes(buf, s.Row)
		buf = appendBytes(buf, s.Family)
		buf = appendBytes(buf, s.Qualifier)
	}
	return buf
}

func appendByte(buf []byte, b byte) []byte { return append(buf, b) }

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBytes(buf, b []byte) []byte {
	buf = appendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}
