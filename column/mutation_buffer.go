package column

// Buffer is the transaction-scoped write set: every column mutation the
// user has staged via Put/Delete, grouped by row so the coordinator can
// select a primary row/column and enumerate secondaries. It corresponds to
// the Java client's ColumnMutationCache keyed by (tableName, Row).
type Buffer struct {
	order []string
	rows  map[string]*RowMutation
}

// NewBuffer creates an empty mutation buffer.
func NewBuffer() *Buffer {
	return &Buffer{rows: make(map[string]*RowMutation)}
}

func rowKey(table, row []byte) string {
	return Coordinate{Table: table, Row: row}.Key()
}

// Add stages kv against (table, row), creating the row's mutation list on
// first use.
func (b *Buffer) Add(table, row []byte, kv KeyValue) {
	k := rowKey(table, row)
	rm, ok := b.rows[k]
	if !ok {
		rm = NewRowMutation(table, row)
		b.rows[k] = rm
		b.order = append(b.order, k)
	}
	rm.Add(kv)
}

// RowCount returns the number of distinct (table, row) pairs with at least
// one staged mutation.
func (b *Buffer) RowCount() int { return len(b.order) }

// Empty reports whether no mutation has been staged at all.
func (b *Buffer) Empty() bool { return len(b.order) == 0 }

// Rows returns every row's mutation set, in the order rows were first
// touched. The coordinator uses this order to pick the primary row.
func (b *Buffer) Rows() []*RowMutation {
	out := make([]*RowMutation, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.rows[k])
	}
	return out
}

// Row returns the mutation set staged for (table, row), if any.
func (b *Buffer) Row(table, row []byte) (*RowMutation, bool) {
	rm, ok := b.rows[rowKey(table, row)]
	return rm, ok
}

// ColumnCount returns the total number of distinct columns staged across
// every row.
func (b *Buffer) ColumnCount() int {
	n := 0
	for _, k := range b.order {
		n += b.rows[k].Len()
	}
	return n
}

// KindOf looks up the mutation kind staged for c, reporting false if c is
// not buffered at all.
func (b *Buffer) KindOf(c Coordinate) (Kind, bool) {
	rm, ok := b.rows[rowKey(c.Table, c.Row)]
	if !ok {
		return 0, false
	}
	m, ok := rm.Get(c)
	if !ok {
		return 0, false
	}
	return m.Kind, true
}
