package client

import (
	"context"

	"github.com/pingcap/themis-go/column"
)

// Scan describes a range scan request: every row in [StartRow, StopRow)
// (StopRow nil means unbounded), restricted to the given columns.
type Scan struct {
	StartRow []byte
	StopRow  []byte
	Columns  []column.Coordinate
}

// ScanClient is an optional extension a ThemisCpClient may implement to
// support range scans. The scan facility itself (how the backing store
// iterates rows server-side) is out of this module's scope; this is only
// the thin client-side seam the coordinator's Scanner adapts.
type ScanClient interface {
	ThemisScan(ctx context.Context, table string, scan *Scan, startTs uint64, ignoreLock bool) (Cursor, error)
}

// Cursor yields successive rows of a scan. Next returns io.EOF-style
// (nil, false, nil) at end of range.
type Cursor interface {
	Next(ctx context.Context) (*Result, bool, error)
	Close() error
}
