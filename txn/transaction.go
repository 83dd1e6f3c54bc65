// Package txn implements the transaction coordinator: the state machine
// that acquires timestamps, buffers mutations, selects a primary, drives
// prewrite with lock-conflict resolution, coordinates commit, and
// orchestrates rollback on partial failure. It is the core of this
// module, ported from store/tikv's twoPhaseCommitter/tikvTxn pairing in
// the teacher repo, generalized from TiKV's percolator dialect to the
// Themis dialect: row-atomic server RPCs instead of batched multi-region
// 2PC, and an external lock cleaner instead of TiKV's built-in resolver.
package txn

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pingcap/failpoint"
	"github.com/pingcap/themis-go/client"
	"github.com/pingcap/themis-go/clock"
	"github.com/pingcap/themis-go/column"
	"github.com/pingcap/themis-go/lock"
	"github.com/pingcap/themis-go/lockcleaner"
	"github.com/pingcap/themis-go/logutil"
	"github.com/pingcap/themis-go/metrics"
	"github.com/pingcap/themis-go/oracle"
	"github.com/pingcap/themis-go/registry"
	"github.com/pingcap/themis-go/themiserr"
	"go.uber.org/zap"
)

// Transaction is the client-visible coordinator for one cross-row,
// cross-table snapshot-isolated write. It is single-use: create one with
// Begin, stage work with Put/Delete/Get, and finish with Commit. Behavior
// after Commit returns or errors is undefined, matching the single-use
// contract of the Java client this was ported from.
type Transaction struct {
	startTs  uint64
	commitTs uint64
	wallTime int64

	buffer *column.Buffer

	primary           *column.Coordinate
	primaryIndexInRow int
	primaryRow        *column.RowMutation
	secondaries       []column.Coordinate
	secondaryRows     []*column.RowMutation

	secondaryLockBytesWithoutType []byte

	preferredPrimary *column.Coordinate

	cp       client.ThemisCpClient
	oracle   oracle.Oracle
	clock    clock.Clock
	registry *registry.Registry
	cleaner  lockcleaner.Cleaner

	rollbackCount int
	clientAddr    []byte
}

// Options bundles the shared, long-lived collaborators a Transaction is
// built from. All fields are required; they outlive any single
// Transaction and must be safe for concurrent use across many
// transactions, per the coordinator's ownership model.
type Options struct {
	Client   client.ThemisCpClient
	Oracle   oracle.Oracle
	Clock    clock.Clock
	Registry *registry.Registry
	Cleaner  lockcleaner.Cleaner
}

// Begin creates a new Transaction anchored at a freshly allocated
// startTs.
func Begin(ctx context.Context, opts Options) (*Transaction, error) {
	startTs, err := opts.Oracle.GetStartTS(ctx)
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindIO, err, "txn: failed to allocate startTs")
	}
	return &Transaction{
		startTs:           startTs,
		buffer:            column.NewBuffer(),
		primaryIndexInRow: -1,
		cp:                opts.Client,
		oracle:            opts.Oracle,
		clock:             opts.Clock,
		registry:          opts.Registry,
		cleaner:           opts.Cleaner,
		clientAddr:        opts.Registry.GetClientAddress(),
	}, nil
}

// StartTS returns the transaction's snapshot timestamp.
func (t *Transaction) StartTS() uint64 { return t.startTs }

// CommitTS returns the transaction's commit timestamp. Valid only after
// Commit has returned successfully.
func (t *Transaction) CommitTS() uint64 { return t.commitTs }

// RollbackCount returns the number of rows this transaction has erased
// via rollbackRow. Exposed for tests asserting rollback fan-out; the
// prometheus statistics sink (metrics.RollbackCounter) is the pluggable
// equivalent for production monitoring.
func (t *Transaction) RollbackCount() int { return t.rollbackCount }

// SetPreferredPrimary pins a preferred primary column before Commit is
// called. Primary selection honors it iff the column is present in the
// buffer at commit time; this exists to let tests pick a deterministic
// primary rather than relying on buffer enumeration order.
func (t *Transaction) SetPreferredPrimary(c column.Coordinate) {
	t.preferredPrimary = &c
}

// Put stages a row's column writes, bundling each column with its value in
// a single column.KeyValue the way the Java client's ThemisPut does,
// rather than two parallel slices whose lengths could silently disagree.
// At least one mutation is required.
func (t *Transaction) Put(table string, row []byte, mutations []column.KeyValue) error {
	if len(mutations) == 0 {
		return themiserr.New(themiserr.KindInvalidRequest, "put: at least one column required")
	}
	for _, kv := range mutations {
		kv.Kind = column.Put
		t.buffer.Add([]byte(table), row, kv)
	}
	return nil
}

// Delete stages a row's column deletes, one column.KeyValue per column.
// Kind defaults to Delete (single-version) when left unset; DeleteColumn
// is honored if the caller set it explicitly. At least one mutation is
// required.
func (t *Transaction) Delete(table string, row []byte, mutations []column.KeyValue) error {
	if len(mutations) == 0 {
		return themiserr.New(themiserr.KindInvalidRequest, "delete: at least one column required")
	}
	for _, kv := range mutations {
		if kv.Kind != column.DeleteColumn {
			kv.Kind = column.Delete
		}
		kv.Value = nil
		t.buffer.Add([]byte(table), row, kv)
	}
	return nil
}

// Get performs a snapshot read at startTs, transparently resolving at
// most one conflicting-lock retry (spec invariant: at most two themisGet
// RPCs per call).
func (t *Transaction) Get(ctx context.Context, table string, get *client.Get) (*client.Result, error) {
	if span := opentracing.SpanFromContext(ctx); span != nil && span.Tracer() != nil {
		span1 := span.Tracer().StartSpan("Transaction.Get", opentracing.ChildOf(span.Context()))
		defer span1.Finish()
		ctx = opentracing.ContextWithSpan(ctx, span1)
	}

	if len(get.Columns) == 0 {
		return nil, themiserr.New(themiserr.KindInvalidRequest, "get: at least one column required")
	}

	res, err := t.cp.ThemisGet(ctx, table, get, t.startTs, false)
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindIO, err, "get: themisGet failed")
	}
	if !client.IsLockResult(res) {
		return res, nil
	}

	if err := t.cleaner.TryToCleanLocks(ctx, table, client.LockCells(res)); err != nil {
		return nil, themiserr.Wrap(themiserr.KindLockConflict, err, "get: failed to clean conflicting locks")
	}

	retry, err := t.cp.ThemisGet(ctx, table, get, t.startTs, true)
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindIO, err, "get: retried themisGet failed")
	}
	if client.IsLockResult(retry) {
		return nil, themiserr.New(themiserr.KindFatal, "get: lock still present after cleaning with ignoreLock=true")
	}
	return retry, nil
}

// Commit finalizes the transaction: plans the primary/secondary split,
// prewrites primary-first, acquires commitTs only once every prewrite has
// succeeded, commits the primary as the atomic linearization point, then
// best-effort commits the secondaries.
func (t *Transaction) Commit(ctx context.Context) (err error) {
	if span := opentracing.SpanFromContext(ctx); span != nil && span.Tracer() != nil {
		span1 := span.Tracer().StartSpan("Transaction.Commit", opentracing.ChildOf(span.Context()))
		defer span1.Finish()
		ctx = opentracing.ContextWithSpan(ctx, span1)
	}

	if t.buffer.Empty() {
		return nil
	}

	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		metrics.TxnDurationHistogram.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	t.wallTime = t.clock.NowMillis()

	if err := t.plan(); err != nil {
		return err
	}

	if err := t.prewriteRowWithLockClean(ctx, t.primaryRow.Table, t.primaryRow, true); err != nil {
		return err
	}

	for i, row := range t.secondaryRows {
		if err := t.prewriteRowWithLockClean(ctx, row.Table, row, false); err != nil {
			return t.rollbackAfterSecondaryPrewriteFailure(ctx, i, err)
		}
	}

	commitTs, err := t.oracle.GetCommitTS(ctx)
	if err != nil {
		return themiserr.Wrap(themiserr.KindIO, err, "commit: failed to allocate commitTs")
	}
	t.commitTs = commitTs

	failpoint.Inject("beforeCommitPrimary", func() {})

	if err := t.commitPrimary(ctx); err != nil {
		if themiserr.Is(err, themiserr.KindLockCleaned) {
			t.rollbackAll(ctx)
		}
		return err
	}

	t.commitSecondaries(ctx)
	return nil
}

// plan implements primary selection (spec §4.5): walk the buffer in
// enumeration order, adopt the first column matching the preferred
// primary (or the very first column if none was preferred) as primary,
// and bucket every other row into secondaryRows.
func (t *Transaction) plan() error {
	for _, row := range t.buffer.Rows() {
		foundInRow := false
		for i, c := range row.Coordinates() {
			if t.primary == nil && (t.preferredPrimary == nil || c.Equal(*t.preferredPrimary)) {
				primary := c
				t.primary = &primary
				t.primaryIndexInRow = i
				t.primaryRow = row
				foundInRow = true
				continue
			}
			t.secondaries = append(t.secondaries, c)
		}
		if row == t.primaryRow {
			foundInRow = true
		}
		if !foundInRow {
			t.secondaryRows = append(t.secondaryRows, row)
		}
	}

	if t.primary == nil {
		return themiserr.New(themiserr.KindInvalidState, "can not find primary column")
	}

	t.secondaryLockBytesWithoutType = t.buildSecondaryLockBytes()
	return nil
}

// singleColumn reports whether this transaction writes exactly one
// column, in which case no secondary lock payload is needed (spec §4.5).
func (t *Transaction) singleColumn() bool {
	return t.primaryRow.Len() <= 1 && len(t.secondaryRows) == 0
}

func (t *Transaction) buildSecondaryLockBytes() []byte {
	if t.singleColumn() {
		return nil
	}
	secLock := t.constructSecondaryLock()
	bytes := secLock.Encode(false)
	return bytes
}

// constructPrimaryLock builds the PrimaryLock payload (spec §4.10): kind
// of the primary column, plus every secondary column's coordinate, in
// selection order. The secondary columns' kinds are not recorded in the
// lock.
func (t *Transaction) constructPrimaryLock() *lock.Lock {
	primaryMutation, _ := t.primaryRow.Get(*t.primary)
	l := &lock.Lock{
		Coordinate:    *t.primary,
		StartTS:       t.startTs,
		Role:          lock.RolePrimary,
		Kind:          primaryMutation.Kind,
		WallTime:      t.wallTime,
		ClientAddress: t.clientAddr,
		Primary:       *t.primary,
		Secondaries:   t.secondaries,
	}
	return l
}

// constructSecondaryLock builds the SecondaryLock payload referencing the
// primary (spec §4.10), to be serialized without its kind byte.
func (t *Transaction) constructSecondaryLock() *lock.Lock {
	return &lock.Lock{
		StartTS:       t.startTs,
		Role:          lock.RoleSecondary,
		WallTime:      t.wallTime,
		ClientAddress: t.clientAddr,
		Primary:       *t.primary,
	}
}

// prewriteRowWithLockClean drives prewrite of a single row with at most
// one conflict-clean retry (spec §4.6).
func (t *Transaction) prewriteRowWithLockClean(ctx context.Context, table []byte, row *column.RowMutation, isPrimary bool) error {
	conflict, err := t.prewriteOnce(ctx, table, row, isPrimary)
	if err != nil {
		return err
	}
	if conflict == nil {
		return nil
	}

	if conflict.Family != client.DataFamily {
		return themiserr.Newf(themiserr.KindFatal, "prewrite: conflict lock on non-data column family %s", conflict.Family)
	}

	role := "secondary"
	if isPrimary {
		role = "primary"
	}
	if err := t.cleaner.TryToCleanLock(ctx, string(table), conflict); err != nil {
		return themiserr.Wrap(themiserr.KindLockConflict, err, "prewrite: failed to clean conflicting lock")
	}
	metrics.PrewriteRetryCounter.WithLabelValues(role).Inc()

	retryConflict, err := t.prewriteOnce(ctx, table, row, isPrimary)
	if err != nil {
		return err
	}
	if retryConflict != nil {
		return themiserr.Newf(themiserr.KindLockConflict, "prewrite: conflicting lock remained after cleaning on %s", retryConflict.Lock.Coordinate.String())
	}
	return nil
}

func (t *Transaction) prewriteOnce(ctx context.Context, table []byte, row *column.RowMutation, isPrimary bool) (*client.ConflictLock, error) {
	mutations := row.Mutations()
	if isPrimary {
		primaryLock := t.constructPrimaryLock()
		conflict, err := t.cp.PrewriteRow(ctx, string(table), row.Row, mutations, t.startTs,
			primaryLock.Encode(true), t.secondaryLockBytesWithoutType, t.primaryIndexInRow)
		if err != nil {
			return nil, themiserr.Wrap(themiserr.KindIO, err, "prewrite: primary row RPC failed")
		}
		return conflict, nil
	}
	conflict, err := t.cp.PrewriteSecondaryRow(ctx, string(table), row.Row, mutations, t.startTs, t.secondaryLockBytesWithoutType)
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindIO, err, "prewrite: secondary row RPC failed")
	}
	return conflict, nil
}

// rollbackAfterSecondaryPrewriteFailure implements spec §4.7's rollback
// and the noted open question verbatim: on failure at secondaryRows[k],
// roll back the primary and secondaryRows[k..0] inclusive, LIFO. Erase is
// idempotent, so re-erasing the row that just failed is harmless.
func (t *Transaction) rollbackAfterSecondaryPrewriteFailure(ctx context.Context, k int, cause error) error {
	t.rollbackRow(ctx, t.primaryRow)
	for i := k; i >= 0; i-- {
		t.rollbackRow(ctx, t.secondaryRows[i])
	}
	return cause
}

// rollbackAll erases the primary and every secondary row, LIFO, used when
// a peer cleaner has already rolled this transaction back behind its
// back (spec §4.8, LOCK_CLEANED).
func (t *Transaction) rollbackAll(ctx context.Context) {
	t.rollbackRow(ctx, t.primaryRow)
	for i := len(t.secondaryRows) - 1; i >= 0; i-- {
		t.rollbackRow(ctx, t.secondaryRows[i])
	}
}

// rollbackRow implements the rollback primitive (spec §4.11).
func (t *Transaction) rollbackRow(ctx context.Context, row *column.RowMutation) {
	role := "secondary"
	if row == t.primaryRow {
		role = "primary"
	}
	if err := t.cleaner.EraseLockAndData(ctx, string(row.Table), row.Row, row.Coordinates(), t.startTs); err != nil {
		logutil.Logger(ctx).Warn("txn: rollback erase failed", zap.String("role", role), zap.Error(err))
	}
	t.rollbackCount++
	metrics.RollbackCounter.WithLabelValues(role).Inc()
}

// commitPrimary implements spec §4.8.
func (t *Transaction) commitPrimary(ctx context.Context) error {
	mutations := withoutValues(t.primaryRow.Mutations())
	err := t.cp.CommitRow(ctx, string(t.primaryRow.Table), t.primaryRow.Row, mutations, t.startTs, t.commitTs, t.primaryIndexInRow)
	if err == nil {
		return nil
	}
	if themiserr.Is(err, themiserr.KindLockCleaned) {
		return themiserr.Wrap(themiserr.KindLockCleaned, err, "commit: primary lock was cleaned by a peer")
	}
	return themiserr.Wrap(themiserr.KindIO, err, "commit: primary commit RPC failed, outcome ambiguous")
}

// commitSecondaries implements spec §4.9: best-effort, log-and-swallow.
func (t *Transaction) commitSecondaries(ctx context.Context) {
	for _, row := range t.secondaryRows {
		mutations := withoutValues(row.Mutations())
		if err := t.cp.CommitSecondaryRow(ctx, string(row.Table), row.Row, mutations, t.startTs, t.commitTs); err != nil {
			metrics.CommitSecondaryFailureCounter.Inc()
			logutil.Logger(ctx).Warn("txn: secondary commit failed, leaving for lock cleaner",
				zap.String("row", string(row.Row)), zap.Error(err))
		}
	}
}

func withoutValues(mutations []column.Mutation) []column.Mutation {
	out := make([]column.Mutation, len(mutations))
	for i, m := range mutations {
		out[i] = m.WithoutValue()
	}
	return out
}
