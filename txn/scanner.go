package txn

import (
	"context"

	"github.com/pingcap/themis-go/client"
	"github.com/pingcap/themis-go/themiserr"
)

// Scanner is the thin adapter the coordinator hands back from
// GetScanner: it drives the backing store's scan facility (itself out of
// scope for this module) at this transaction's startTs. A row that comes
// back with lock cells has those locks handed to the lock cleaner; unlike
// Get, the row is not re-read afterwards.
type Scanner struct {
	tx     *Transaction
	table  string
	cursor client.Cursor
}

// GetScanner opens a range scan at this transaction's snapshot. Requires
// the wired client to implement client.ScanClient; returns FATAL
// otherwise, since a scan-incapable backing store cannot serve this call
// at all rather than serving it incorrectly.
func (t *Transaction) GetScanner(ctx context.Context, table string, scan *client.Scan) (*Scanner, error) {
	sc, ok := t.cp.(client.ScanClient)
	if !ok {
		return nil, themiserr.New(themiserr.KindFatal, "getScanner: backing store client does not support scans")
	}
	cursor, err := sc.ThemisScan(ctx, table, scan, t.startTs, false)
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindIO, err, "getScanner: failed to open scan")
	}
	return &Scanner{tx: t, table: table, cursor: cursor}, nil
}

// Next advances the scanner and returns the next row's result. If the row
// carries lock cells, Next asks the lock cleaner to resolve them and then
// returns the row as first read, lock cells included; it issues no
// second read of the row.
func (s *Scanner) Next(ctx context.Context) (*client.Result, bool, error) {
	res, ok, err := s.cursor.Next(ctx)
	if err != nil {
		return nil, false, themiserr.Wrap(themiserr.KindIO, err, "scanner: next failed")
	}
	if !ok || !client.IsLockResult(res) {
		return res, ok, nil
	}

	if err := s.tx.cleaner.TryToCleanLocks(ctx, s.table, client.LockCells(res)); err != nil {
		return nil, false, themiserr.Wrap(themiserr.KindLockConflict, err, "scanner: failed to clean conflicting locks")
	}

	// The backing store's scan cursor has already advanced past this row;
	// a correct re-read would require the cursor to support re-fetching
	// the current row with ignoreLock=true, which is part of the scan
	// facility this module treats as out of scope. Surface the row as-is
	// once cleaned rather than silently dropping it.
	return res, ok, nil
}

// Close releases the underlying cursor.
func (s *Scanner) Close() error {
	return s.cursor.Close()
}
