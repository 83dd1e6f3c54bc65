package txn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap/themis-go/client"
	"github.com/pingcap/themis-go/clock"
	"github.com/pingcap/themis-go/column"
	"github.com/pingcap/themis-go/lock"
	"github.com/pingcap/themis-go/lockcleaner"
	"github.com/pingcap/themis-go/mockclient"
	"github.com/pingcap/themis-go/oracle"
	"github.com/pingcap/themis-go/registry"
	"github.com/pingcap/themis-go/themiserr"
)

func newHarness() (Options, *mockclient.Client) {
	cp := mockclient.New()
	reg := registry.New()
	clk := clock.NewFake(1000)
	cleaner := lockcleaner.New(cp, clk, reg)
	return Options{
		Client:   cp,
		Oracle:   oracle.NewLocal(),
		Clock:    clk,
		Registry: reg,
		Cleaner:  cleaner,
	}, cp
}

func col(fam, qual string) column.Coordinate {
	return column.Coordinate{Family: []byte(fam), Qualifier: []byte(qual)}
}

func kv(fam, qual, value string) column.KeyValue {
	return column.KeyValue{Family: []byte(fam), Qualifier: []byte(qual), Value: []byte(value)}
}

// S1: single-column transaction needs no secondary lock and issues one
// prewrite / one commit RPC.
func TestSingleColumnTransactionCommits(t *testing.T) {
	opts, cp := newHarness()
	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)

	require.NoError(t, tx.Put("t1", []byte("r1"), []column.KeyValue{kv("f", "q", "v")}))
	require.NoError(t, tx.Commit(context.Background()))
	assert.Nil(t, tx.secondaryLockBytesWithoutType)
	assert.Len(t, tx.secondaryRows, 0)

	res, err := cp.ThemisGet(context.Background(), "t1", &client.Get{Row: []byte("r1"), Columns: []column.Coordinate{col("f", "q")}}, tx.CommitTS(), false)
	require.NoError(t, err)
	require.Len(t, res.Cells, 1)
	assert.Equal(t, []byte("v"), res.Cells[0].Value)
}

// S2: cross-row commit prewrites primary then secondary, commits primary
// then secondary.
func TestCrossRowCommitOrdersPrimaryFirst(t *testing.T) {
	opts, cp := newHarness()
	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)

	require.NoError(t, tx.Put("t1", []byte("r1"), []column.KeyValue{kv("f", "q", "v1")}))
	require.NoError(t, tx.Put("t1", []byte("r2"), []column.KeyValue{kv("f", "q", "v2")}))

	require.NoError(t, tx.Commit(context.Background()))
	assert.NotNil(t, tx.secondaryLockBytesWithoutType)
	assert.Len(t, tx.secondaryRows, 1)
	assert.Equal(t, []byte("r2"), tx.secondaryRows[0].Row)

	for _, row := range [][]byte{[]byte("r1"), []byte("r2")} {
		res, err := cp.ThemisGet(context.Background(), "t1", &client.Get{Row: row, Columns: []column.Coordinate{col("f", "q")}}, tx.CommitTS(), false)
		require.NoError(t, err)
		require.Len(t, res.Cells, 1)
	}
}

// S4: an unresolvable conflict during secondary prewrite rolls back the
// primary and any earlier secondaries, propagating LOCK_CONFLICT.
func TestSecondaryPrewriteConflictRollsBackPrimary(t *testing.T) {
	opts, cp := newHarness()

	// Simulate a stale foreign lock on r2 that the cleaner cannot resolve
	// (owner still "alive" per the registry, so TTL-based erase refuses).
	foreignTx, ferr := Begin(context.Background(), opts)
	require.NoError(t, ferr)
	require.NoError(t, foreignTx.Put("t1", []byte("r2"), []column.KeyValue{kv("f", "q", "stale")}))
	require.NoError(t, foreignTx.plan())
	require.NoError(t, foreignTx.prewriteRowWithLockClean(context.Background(), foreignTx.primaryRow.Table, foreignTx.primaryRow, true))

	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, tx.Put("t1", []byte("r1"), []column.KeyValue{kv("f", "q", "v1")}))
	require.NoError(t, tx.Put("t1", []byte("r2"), []column.KeyValue{kv("f", "q", "v2")}))

	err = tx.Commit(context.Background())
	require.Error(t, err)

	// Primary row's lock and staged data must have been erased by rollback.
	res, gerr := cp.ThemisGet(context.Background(), "t1", &client.Get{Row: []byte("r1"), Columns: []column.Coordinate{col("f", "q")}}, tx.startTs, true)
	require.NoError(t, gerr)
	assert.Len(t, res.Cells, 0)
}

// S6: a secondary commit I/O failure is swallowed; Commit still succeeds.
func TestSecondaryCommitFailureIsSwallowed(t *testing.T) {
	opts, cp := newHarness()
	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)

	require.NoError(t, tx.Put("t1", []byte("r1"), []column.KeyValue{kv("f", "q", "v1")}))
	require.NoError(t, tx.Put("t1", []byte("r2"), []column.KeyValue{kv("f", "q", "v2")}))

	require.NoError(t, tx.plan())
	require.NoError(t, tx.prewriteRowWithLockClean(context.Background(), tx.primaryRow.Table, tx.primaryRow, true))
	for i, row := range tx.secondaryRows {
		require.NoError(t, tx.prewriteRowWithLockClean(context.Background(), row.Table, row, false), "secondary %d", i)
	}
	commitTs, cerr := opts.Oracle.GetCommitTS(context.Background())
	require.NoError(t, cerr)
	tx.commitTs = commitTs
	require.NoError(t, tx.commitPrimary(context.Background()))

	// Erase the secondary's lock out from under the commit call to force
	// CommitSecondaryRow to fail as if it hit an I/O error.
	require.NoError(t, cp.EraseLockAndData(context.Background(), "t1", []byte("r2"), []column.Mutation{{Family: []byte("f"), Qualifier: []byte("q")}}, tx.startTs))

	assert.NotPanics(t, func() { tx.commitSecondaries(context.Background()) })
}

func TestCommitWithEmptyBufferIsNoop(t *testing.T) {
	opts, _ := newHarness()
	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)
	assert.NoError(t, tx.Commit(context.Background()))
}

func TestPutRejectsEmptyColumnList(t *testing.T) {
	opts, _ := newHarness()
	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)
	assert.Error(t, tx.Put("t1", []byte("r1"), nil))
}

func TestDeleteRejectsEmptyColumnList(t *testing.T) {
	opts, _ := newHarness()
	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)
	assert.Error(t, tx.Delete("t1", []byte("r1"), nil))
}

func TestPreferredPrimaryIsHonoredWhenPresent(t *testing.T) {
	opts, _ := newHarness()
	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)

	require.NoError(t, tx.Put("t1", []byte("r1"), []column.KeyValue{kv("f", "q1", "a")}))
	require.NoError(t, tx.Put("t1", []byte("r1"), []column.KeyValue{kv("f", "q2", "b")}))

	preferred := column.Coordinate{Table: []byte("t1"), Row: []byte("r1"), Family: []byte("f"), Qualifier: []byte("q2")}
	tx.SetPreferredPrimary(preferred)

	require.NoError(t, tx.plan())
	assert.True(t, tx.primary.Equal(preferred))
}

// S3: a conflicting lock left behind by a dead worker is cleaned and the
// prewrite retry succeeds, letting commit proceed normally.
func TestSecondaryPrewriteConflictResolvedByCleanerSucceeds(t *testing.T) {
	opts, cp := newHarness()
	clk := opts.Clock
	foreignReg := registry.New()

	// A foreign worker, tracked by its own registry, prewrites r2's primary
	// and then vanishes: its registration is invisible to the main
	// transaction's registry, and its lock's wallTime (zero, since it never
	// reached Commit) is already older than the TTL once the clock advances.
	foreignOpts := Options{Client: opts.Client, Oracle: opts.Oracle, Clock: clk, Registry: foreignReg, Cleaner: lockcleaner.New(opts.Client, clk, foreignReg)}
	foreignTx, ferr := Begin(context.Background(), foreignOpts)
	require.NoError(t, ferr)
	require.NoError(t, foreignTx.Put("t1", []byte("r2"), []column.KeyValue{kv("f", "q", "stale")}))
	require.NoError(t, foreignTx.plan())
	require.NoError(t, foreignTx.prewriteRowWithLockClean(context.Background(), foreignTx.primaryRow.Table, foreignTx.primaryRow, true))

	fakeClk, ok := clk.(*clock.Fake)
	require.True(t, ok)
	fakeClk.Advance(120000)

	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, tx.Put("t1", []byte("r1"), []column.KeyValue{kv("f", "q", "v1")}))
	require.NoError(t, tx.Put("t1", []byte("r2"), []column.KeyValue{kv("f", "q", "v2")}))

	require.NoError(t, tx.Commit(context.Background()))
	assert.Equal(t, 0, tx.RollbackCount())

	res, gerr := cp.ThemisGet(context.Background(), "t1", &client.Get{Row: []byte("r2"), Columns: []column.Coordinate{col("f", "q")}}, tx.CommitTS(), false)
	require.NoError(t, gerr)
	require.Len(t, res.Cells, 1)
	assert.Equal(t, []byte("v2"), res.Cells[0].Value)
}

// S5: the primary's lock is cleaned by a peer between prewrite and commit,
// so CommitRow reports LOCK_CLEANED and the coordinator rolls everything
// back rather than leaving secondaries dangling.
func TestPrimaryCommitLockCleanedRollsBackEverything(t *testing.T) {
	opts, cp := newHarness()
	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)

	require.NoError(t, tx.Put("t1", []byte("r1"), []column.KeyValue{kv("f", "q", "v1")}))
	require.NoError(t, tx.Put("t1", []byte("r2"), []column.KeyValue{kv("f", "q", "v2")}))

	require.NoError(t, tx.plan())
	require.NoError(t, tx.prewriteRowWithLockClean(context.Background(), tx.primaryRow.Table, tx.primaryRow, true))
	for _, row := range tx.secondaryRows {
		require.NoError(t, tx.prewriteRowWithLockClean(context.Background(), row.Table, row, false))
	}

	// A peer cleaner erases the primary's lock behind this transaction's
	// back, simulating it having been judged dead and rolled back.
	require.NoError(t, cp.EraseLockAndData(context.Background(), "t1", []byte("r1"), []column.Mutation{{Family: []byte("f"), Qualifier: []byte("q")}}, tx.startTs))

	commitTs, cerr := opts.Oracle.GetCommitTS(context.Background())
	require.NoError(t, cerr)
	tx.commitTs = commitTs

	err = tx.commitPrimary(context.Background())
	require.Error(t, err)
	assert.True(t, themiserr.Is(err, themiserr.KindLockCleaned))

	tx.rollbackAll(context.Background())
	assert.Equal(t, 2, tx.RollbackCount())

	for _, row := range [][]byte{[]byte("r1"), []byte("r2")} {
		res, gerr := cp.ThemisGet(context.Background(), "t1", &client.Get{Row: row, Columns: []column.Coordinate{col("f", "q")}}, tx.startTs, true)
		require.NoError(t, gerr)
		assert.Len(t, res.Cells, 0)
	}
}

// fatalGetClient always answers with a lock-sentinel cell, modeling a
// backing store that never lets go of a conflicting lock.
type fatalGetClient struct{ *mockclient.Client }

func (f fatalGetClient) ThemisGet(ctx context.Context, table string, get *client.Get, startTs uint64, ignoreLock bool) (*client.Result, error) {
	l := lock.Lock{StartTS: startTs, Coordinate: col("f", "q")}
	return &client.Result{Cells: []client.Cell{{Coordinate: col("f", "q"), IsLock: true, Lock: l}}}, nil
}

// noopCleaner resolves every lock without error but never actually removes
// it, isolating the Get retry's defensive FATAL check from the rest of the
// cleaning policy.
type noopCleaner struct{}

func (noopCleaner) TryToCleanLocks(ctx context.Context, table string, cells []client.Cell) error {
	return nil
}
func (noopCleaner) TryToCleanLock(ctx context.Context, table string, conflict *client.ConflictLock) error {
	return nil
}
func (noopCleaner) EraseLockAndData(ctx context.Context, table string, row []byte, columns []column.Coordinate, startTs uint64) error {
	return nil
}

// S7: a read conflict is "cleaned" without error but the retry still
// observes the same lock, which must surface as FATAL rather than retried
// forever (at most two themisGet RPCs per Get).
func TestGetStillLockedAfterCleanIsFatal(t *testing.T) {
	opts, cp := newHarness()
	opts.Client = fatalGetClient{cp}
	opts.Cleaner = noopCleaner{}

	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)

	_, err = tx.Get(context.Background(), "t1", &client.Get{Row: []byte("r1"), Columns: []column.Coordinate{col("f", "q")}})
	require.Error(t, err)
	assert.True(t, themiserr.Is(err, themiserr.KindFatal))
}

func TestGetScannerReadsEveryRowInRange(t *testing.T) {
	opts, _ := newHarness()
	tx, err := Begin(context.Background(), opts)
	require.NoError(t, err)

	require.NoError(t, tx.Put("t1", []byte("r1"), []column.KeyValue{kv("f", "q", "v1")}))
	require.NoError(t, tx.Put("t1", []byte("r2"), []column.KeyValue{kv("f", "q", "v2")}))
	require.NoError(t, tx.Commit(context.Background()))

	readTx, err := Begin(context.Background(), opts)
	require.NoError(t, err)
	scanner, err := readTx.GetScanner(context.Background(), "t1", &client.Scan{Columns: []column.Coordinate{col("f", "q")}})
	require.NoError(t, err)
	defer scanner.Close()

	var rowsSeen int
	for {
		res, ok, err := scanner.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		rowsSeen++
		require.Len(t, res.Cells, 1)
	}
	assert.Equal(t, 2, rowsSeen)
}
