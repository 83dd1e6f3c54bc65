// Package lockcleaner implements the collaborator the coordinator calls
// when a read or prewrite observes a conflicting lock. Its internal
// policy is explicitly out of scope for the coordinator's correctness
// argument — the coordinator only depends on the three-method contract
// below — but this module ships a working default so the protocol can be
// exercised end to end without a real backing store. The policy mirrors
// the LockManager seam from the reference go-themis client
// (CleanLock/EraseLockAndData/GetCommitTimestamp/IsLockExists): ask the
// primary what happened, then roll the secondary the same way.
package lockcleaner

import (
	"bytes"
	"context"
	"math"

	"github.com/pingcap/themis-go/client"
	"github.com/pingcap/themis-go/clock"
	"github.com/pingcap/themis-go/column"
	"github.com/pingcap/themis-go/lock"
	"github.com/pingcap/themis-go/logutil"
	"github.com/pingcap/themis-go/metrics"
	"github.com/pingcap/themis-go/registry"
	"github.com/pingcap/themis-go/themiserr"
	"go.uber.org/zap"
)

// Cleaner is the interface the coordinator consumes. Every method may
// issue further RPCs against the backing store and must be safe for
// concurrent use.
type Cleaner interface {
	// TryToCleanLocks attempts to resolve every lock cell observed in a
	// themisGet response. Raises on failure to resolve any of them.
	TryToCleanLocks(ctx context.Context, table string, lockCells []client.Cell) error
	// TryToCleanLock resolves a single conflicting lock observed during
	// prewrite.
	TryToCleanLock(ctx context.Context, table string, conflict *client.ConflictLock) error
	// EraseLockAndData idempotently erases any LOCK entries and the
	// staged DATA at startTs for the given columns of one row.
	EraseLockAndData(ctx context.Context, table string, row []byte, columns []column.Coordinate, startTs uint64) error
}

// ttlMillis is the duration a lock must be observably unrefreshed before
// this cleaner treats its owner as dead. Mirrors the fixed-TTL policy
// used by the reference client rather than deriving it from server config,
// since TTL policy itself is Non-goal per the coordinator's contract.
const ttlMillis = 60000

// Default is the shipped Cleaner implementation: it asks the primary
// lock's row whether the primary has already committed (roll the
// secondary forward) and otherwise waits for the lock's TTL to expire
// against the worker registry before erasing it (roll back).
type Default struct {
	Client   client.ThemisCpClient
	Clock    clock.Clock
	Registry *registry.Registry
}

// New creates a Default cleaner wired to the given collaborators.
func New(cp client.ThemisCpClient, c clock.Clock, r *registry.Registry) *Default {
	return &Default{Client: cp, Clock: c, Registry: r}
}

// TryToCleanLocks resolves every lock cell in lockCells, stopping at the
// first unresolvable one.
func (d *Default) TryToCleanLocks(ctx context.Context, table string, lockCells []client.Cell) error {
	metrics.LockCleanCounter.WithLabelValues("read").Inc()
	for _, cell := range lockCells {
		conflict := &client.ConflictLock{Lock: cell.Lock, Family: client.DataFamily}
		if err := d.cleanLock(ctx, table, conflict); err != nil {
			return err
		}
	}
	return nil
}

// TryToCleanLock resolves a single conflicting lock: if the transaction
// that wrote it has since committed (judged by the existence of a WRITE
// entry for its primary), commit this lock's column forward at the
// primary's commitTs; if the owning worker is no longer registered and
// the lock has outlived its TTL, erase the lock and its staged data
// outright.
func (d *Default) TryToCleanLock(ctx context.Context, table string, conflict *client.ConflictLock) error {
	metrics.LockCleanCounter.WithLabelValues("prewrite").Inc()
	return d.cleanLock(ctx, table, conflict)
}

// cleanLock is the resolution step shared by TryToCleanLock and
// TryToCleanLocks, without the metrics increment.
func (d *Default) cleanLock(ctx context.Context, table string, conflict *client.ConflictLock) error {
	if conflict == nil {
		return nil
	}
	l := conflict.Lock

	committed, commitTs, err := d.primaryCommitted(ctx, table, l)
	if err != nil {
		return err
	}
	if committed {
		return d.rollForward(ctx, table, l, commitTs)
	}

	now := d.Clock.NowMillis()
	expired := !d.Registry.IsAlive(l.ClientAddress) && l.TTLExpired(now, ttlMillis)
	if !expired {
		return themiserr.Newf(themiserr.KindLockConflict, "lock on %s not yet resolvable", l.Coordinate.String())
	}
	return d.EraseLockAndData(ctx, table, l.Coordinate.Row, []column.Coordinate{l.Coordinate}, l.StartTS)
}

// primaryCommitted asks whether l's primary column has a WRITE entry at or
// after l.StartTS (reading the latest version, ignoring locks), meaning the
// transaction committed and this lock should be rolled forward rather than
// erased.
func (d *Default) primaryCommitted(ctx context.Context, table string, l lock.Lock) (bool, uint64, error) {
	res, err := d.Client.ThemisGet(ctx, table, &client.Get{
		Row:     l.Primary.Row,
		Columns: []column.Coordinate{l.Primary},
	}, math.MaxUint64, true)
	if err != nil {
		return false, 0, themiserr.Wrap(themiserr.KindIO, err, "lockcleaner: primary lookup failed")
	}
	for _, c := range res.Cells {
		if !c.IsLock && bytes.Equal(c.Coordinate.Family, l.Primary.Family) &&
			bytes.Equal(c.Coordinate.Qualifier, l.Primary.Qualifier) && c.Timestamp >= l.StartTS {
			return true, c.Timestamp, nil
		}
	}
	return false, 0, nil
}

// rollForward commits the secondary's lock forward using the primary's
// already-known commitTs, then lets the caller's prewrite/read retry
// observe a clean column.
func (d *Default) rollForward(ctx context.Context, table string, l lock.Lock, commitTs uint64) error {
	mutation := column.Mutation{Family: l.Coordinate.Family, Qualifier: l.Coordinate.Qualifier, Kind: l.Kind}
	err := d.Client.CommitSecondaryRow(ctx, table, l.Coordinate.Row, []column.Mutation{mutation}, l.StartTS, commitTs)
	if err != nil {
		logutil.BgLogger().Warn("lockcleaner: roll-forward commit failed", zap.Error(err))
	}
	return nil
}

// EraseLockAndData idempotently erases the LOCK and the staged DATA at
// startTs for the given columns.
func (d *Default) EraseLockAndData(ctx context.Context, table string, row []byte, columns []column.Coordinate, startTs uint64) error {
	mutations := make([]column.Mutation, len(columns))
	for i, c := range columns {
		mutations[i] = column.Mutation{Family: c.Family, Qualifier: c.Qualifier}
	}
	// CommitRow with a sentinel "erase" path is server-internal and out of
	// this contract's scope; a real backing store exposes a dedicated
	// erase RPC. This module models it by attempting the erase through
	// the themisErase-equivalent path a deployment's ThemisCpClient would
	// provide alongside the five RPCs this interface documents.
	if eraser, ok := d.Client.(interface {
		EraseLockAndData(ctx context.Context, table string, row []byte, mutations []column.Mutation, startTs uint64) error
	}); ok {
		return eraser.EraseLockAndData(ctx, table, row, mutations, startTs)
	}
	return themiserr.New(themiserr.KindFatal, "lockcleaner: client does not support erase")
}
