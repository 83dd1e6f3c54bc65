// Package mockclient implements an in-process ThemisCpClient over a
// plain in-memory DATA/LOCK/WRITE store, so the full coordinator protocol
// (prewrite, commit, rollback, lock cleaning) can be exercised by tests
// without a real distributed backing store. Grounded on the
// store/mockstore/mocktikv constructor pattern in the teacher repo: a
// single-process stand-in wired behind the same client interface the
// coordinator uses against a real deployment.
package mockclient

import (
	"context"
	"sort"
	"sync"

	"github.com/pingcap/themis-go/client"
	"github.com/pingcap/themis-go/column"
	"github.com/pingcap/themis-go/lock"
	"github.com/pingcap/themis-go/themiserr"
)

type cellKey struct {
	row    string
	family string
	qual   string
	ts     uint64
}

// Store is the in-memory backing store: three shadow column families
// (DATA, LOCK, WRITE) per table. DATA and WRITE are keyed by (row, family,
// qualifier, timestamp); LOCK holds at most one lock per (row, family,
// qualifier). It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	tables map[string]*tableData
}

type tableData struct {
	data  map[cellKey][]byte   // DATA@ts -> value
	locks map[string]lock.Lock // row/family/qual -> lock (unique per column, at most one live lock)
	write map[cellKey]uint64   // WRITE@commitTs(row,family,qual) -> startTs it points to
	rows  map[string][]byte    // row string -> row bytes, for scan enumeration
}

// NewStore creates an empty backing store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*tableData)}
}

func (s *Store) table(name string) *tableData {
	t, ok := s.tables[name]
	if !ok {
		t = &tableData{
			data:  make(map[cellKey][]byte),
			locks: make(map[string]lock.Lock),
			write: make(map[cellKey]uint64),
			rows:  make(map[string][]byte),
		}
		s.tables[name] = t
	}
	return t
}

func columnKey(row []byte, c column.Coordinate) string {
	return column.Coordinate{Row: row, Family: c.Family, Qualifier: c.Qualifier}.Key()
}

// Client adapts Store to the client.ThemisCpClient interface the
// coordinator drives.
type Client struct {
	store *Store
}

// New creates a Client backed by a fresh Store.
func New() *Client {
	return &Client{store: NewStore()}
}

// NewWithStore creates a Client backed by an existing, possibly shared,
// Store, so that several Clients can read and write the same state.
func NewWithStore(s *Store) *Client {
	return &Client{store: s}
}

// ThemisGet implements client.ThemisCpClient.
func (c *Client) ThemisGet(ctx context.Context, table string, get *client.Get, startTs uint64, ignoreLock bool) (*client.Result, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	t := c.store.table(table)

	res := &client.Result{}
	for _, col := range get.Columns {
		coord := column.Coordinate{Table: []byte(table), Row: get.Row, Family: col.Family, Qualifier: col.Qualifier}
		key := columnKey(get.Row, col)

		if !ignoreLock {
			if l, ok := t.locks[key]; ok && l.StartTS <= startTs {
				res.Cells = append(res.Cells, client.Cell{Coordinate: coord, IsLock: true, Lock: l})
				continue
			}
		}

		bestCommitTs := uint64(0)
		bestStartTs := uint64(0)
		found := false
		for k, pointsTo := range t.write {
			if k.row == string(get.Row) && k.family == string(col.Family) && k.qual == string(col.Qualifier) && k.ts <= startTs {
				if k.ts > bestCommitTs {
					bestCommitTs = k.ts
					bestStartTs = pointsTo
					found = true
				}
			}
		}
		if !found {
			continue
		}
		value := t.data[cellKey{row: string(get.Row), family: string(col.Family), qual: string(col.Qualifier), ts: bestStartTs}]
		res.Cells = append(res.Cells, client.Cell{Coordinate: coord, Value: value, Timestamp: bestCommitTs})
	}
	return res, nil
}

// PrewriteRow implements client.ThemisCpClient.
func (c *Client) PrewriteRow(ctx context.Context, table string, row []byte, mutations []column.Mutation, startTs uint64,
	primaryLockBytes, secondaryLockBytesWithoutType []byte, primaryIndexInRow int) (*client.ConflictLock, error) {
	decoded, _, err := lock.Decode(primaryLockBytes)
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindFatal, err, "mockclient: bad primary lock bytes")
	}
	return c.prewrite(table, row, mutations, startTs, &decoded)
}

// PrewriteSecondaryRow implements client.ThemisCpClient.
func (c *Client) PrewriteSecondaryRow(ctx context.Context, table string, row []byte, mutations []column.Mutation, startTs uint64,
	secondaryLockBytesWithoutType []byte) (*client.ConflictLock, error) {
	decoded, _, err := lock.Decode(secondaryLockBytesWithoutType)
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindFatal, err, "mockclient: bad secondary lock bytes")
	}
	decoded.Role = lock.RoleSecondary
	return c.prewrite(table, row, mutations, startTs, &decoded)
}

func (c *Client) prewrite(table string, row []byte, mutations []column.Mutation, startTs uint64, baseLock *lock.Lock) (*client.ConflictLock, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	t := c.store.table(table)

	for _, m := range mutations {
		key := columnKey(row, column.Coordinate{Family: m.Family, Qualifier: m.Qualifier})
		if existing, ok := t.locks[key]; ok {
			return &client.ConflictLock{Lock: existing, Family: client.DataFamily}, nil
		}
		for k := range t.write {
			if k.row == string(row) && k.family == string(m.Family) && k.qual == string(m.Qualifier) && k.ts >= startTs {
				return &client.ConflictLock{Lock: lock.Lock{Coordinate: column.Coordinate{Table: []byte(table), Row: row, Family: m.Family, Qualifier: m.Qualifier}}, Family: client.DataFamily}, nil
			}
		}
	}

	for _, m := range mutations {
		key := columnKey(row, column.Coordinate{Family: m.Family, Qualifier: m.Qualifier})
		coord := column.Coordinate{Table: []byte(table), Row: row, Family: m.Family, Qualifier: m.Qualifier}
		l := *baseLock
		l.Coordinate = coord
		l.StartTS = startTs
		l.Kind = m.Kind
		t.locks[key] = l
		t.data[cellKey{row: string(row), family: string(m.Family), qual: string(m.Qualifier), ts: startTs}] = m.Value
	}
	t.rows[string(row)] = row
	return nil, nil
}

// CommitRow implements client.ThemisCpClient.
func (c *Client) CommitRow(ctx context.Context, table string, row []byte, mutations []column.Mutation, startTs, commitTs uint64, primaryIndexInRow int) error {
	return c.commit(table, row, mutations, startTs, commitTs)
}

// CommitSecondaryRow implements client.ThemisCpClient.
func (c *Client) CommitSecondaryRow(ctx context.Context, table string, row []byte, mutations []column.Mutation, startTs, commitTs uint64) error {
	return c.commit(table, row, mutations, startTs, commitTs)
}

func (c *Client) commit(table string, row []byte, mutations []column.Mutation, startTs, commitTs uint64) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	t := c.store.table(table)

	for _, m := range mutations {
		key := columnKey(row, column.Coordinate{Family: m.Family, Qualifier: m.Qualifier})
		l, ok := t.locks[key]
		if !ok || l.StartTS != startTs {
			return themiserr.New(themiserr.KindLockCleaned, "mockclient: primary lock missing at commit time")
		}
	}

	for _, m := range mutations {
		key := columnKey(row, column.Coordinate{Family: m.Family, Qualifier: m.Qualifier})
		delete(t.locks, key)
		t.write[cellKey{row: string(row), family: string(m.Family), qual: string(m.Qualifier), ts: commitTs}] = startTs
	}
	return nil
}

// EraseLockAndData implements the erase primitive lockcleaner.Default
// looks up via interface assertion, and is also used directly by tests.
func (c *Client) EraseLockAndData(ctx context.Context, table string, row []byte, mutations []column.Mutation, startTs uint64) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	t := c.store.table(table)
	for _, m := range mutations {
		key := columnKey(row, column.Coordinate{Family: m.Family, Qualifier: m.Qualifier})
		if l, ok := t.locks[key]; ok && l.StartTS == startTs {
			delete(t.locks, key)
		}
		delete(t.data, cellKey{row: string(row), family: string(m.Family), qual: string(m.Qualifier), ts: startTs})
	}
	return nil
}

// ThemisScan implements client.ScanClient, letting txn.Scanner exercise
// a multi-row snapshot read against this in-memory store.
func (c *Client) ThemisScan(ctx context.Context, table string, scan *client.Scan, startTs uint64, ignoreLock bool) (client.Cursor, error) {
	c.store.mu.Lock()
	t := c.store.table(table)
	rows := make([][]byte, 0, len(t.rows))
	for _, r := range t.rows {
		if scan.StartRow != nil && string(r) < string(scan.StartRow) {
			continue
		}
		if scan.StopRow != nil && string(r) >= string(scan.StopRow) {
			continue
		}
		rows = append(rows, r)
	}
	c.store.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return string(rows[i]) < string(rows[j]) })
	return &cursor{client: c, table: table, scan: scan, startTs: startTs, ignoreLock: ignoreLock, rows: rows}, nil
}

type cursor struct {
	client     *Client
	table      string
	scan       *client.Scan
	startTs    uint64
	ignoreLock bool
	rows       [][]byte
	pos        int
}

func (cur *cursor) Next(ctx context.Context) (*client.Result, bool, error) {
	if cur.pos >= len(cur.rows) {
		return nil, false, nil
	}
	row := cur.rows[cur.pos]
	cur.pos++
	res, err := cur.client.ThemisGet(ctx, cur.table, &client.Get{Row: row, Columns: cur.scan.Columns}, cur.startTs, cur.ignoreLock)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (cur *cursor) Close() error { return nil }
