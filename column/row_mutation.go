package column

// RowMutation is the ordered set of column mutations staged for one
// (table, row) pair. Order matters only for determinism of enumeration;
// the server applies each column independently.
type RowMutation struct {
	Table []byte
	Row   []byte

	order   []string
	byCol   map[string]Mutation
	columns map[string]Coordinate
}

// NewRowMutation creates an empty RowMutation for the given table/row.
func NewRowMutation(table, row []byte) *RowMutation {
	return &RowMutation{
		Table:   table,
		Row:     row,
		byCol:   make(map[string]Mutation),
		columns: make(map[string]Coordinate),
	}
}

// Add stages kv against this row, overwriting any earlier mutation for the
// same (family, qualifier) — the last write for a column wins, matching
// the Java client's mutationCache.addMutation semantics.
func (r *RowMutation) Add(kv KeyValue) {
	c := Coordinate{Table: r.Table, Row: r.Row, Family: kv.Family, Qualifier: kv.Qualifier}
	k := c.Key()
	if _, exists := r.byCol[k]; !exists {
		r.order = append(r.order, k)
	}
	r.byCol[k] = newMutation(kv)
	r.columns[k] = c
}

// Len returns the number of distinct columns staged in this row.
func (r *RowMutation) Len() int { return len(r.order) }

// Coordinates returns the coordinates of every staged column, in staging
// order.
func (r *RowMutation) Coordinates() []Coordinate {
	out := make([]Coordinate, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.columns[k])
	}
	return out
}

// Get returns the mutation staged for coordinate c, if any.
func (r *RowMutation) Get(c Coordinate) (Mutation, bool) {
	m, ok := r.byCol[c.Key()]
	return m, ok
}

// Mutations returns every staged mutation, in staging order.
func (r *RowMutation) Mutations() []Mutation {
	out := make([]Mutation, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byCol[k])
	}
	return out
}

// WithoutValues returns a copy of r whose Put mutations have had their
// values stripped, for use when building the commit-phase request.
func (r *RowMutation) WithoutValues() *RowMutation {
	clone := NewRowMutation(r.Table, r.Row)
	clone.order = append([]string(nil), r.order...)
	for k, c := range r.columns {
		clone.columns[k] = c
	}
	for k, m := range r.byCol {
		clone.byCol[k] = m.WithoutValue()
	}
	return clone
}
