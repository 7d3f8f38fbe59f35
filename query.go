package lstore

import (
	"math"

	"github.com/pkg/errors"
)

// Record is one row returned by a read.
type Record struct {
	RID     RID
	Key     Value
	Columns []Value
}

// Query is the operation surface of a table. Every operation runs under
// the table lock and keeps storage and index in step: a mutation either
// applies to storage and index together or does not apply at all.
type Query struct {
	table *Table
}

func NewQuery(t *Table) *Query {
	return &Query{table: t}
}

// Insert adds a row. values must hold one value per column, the key
// column included.
func (q *Query) Insert(values ...Value) (RID, error) {
	t := q.table
	if len(values) != t.NumColumns {
		return 0, errors.Wrapf(ErrInvalidArity, "got %d values, table %q has %d columns", len(values), t.Name, t.NumColumns)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.index.holds(t.Key, values[t.Key]) {
		return 0, errors.Wrapf(ErrDuplicateKey, "key %s", values[t.Key])
	}
	rid := t.insert(values)
	for _, col := range t.index.indexed() {
		t.index.indexEntry(col, rid, values[col])
	}
	return rid, nil
}

// Select returns the records whose current value in col equals v, each
// read at version ver. Columns holds the projected columns in the order
// given; no projection returns every column.
func (q *Query) Select(col int, v Value, ver Version, projected ...int) []Record {
	t := q.table
	cols := q.projection("select", projected)

	t.mu.RLock()
	defer t.mu.RUnlock()
	return q.records(t.index.locate(col, v), ver, cols)
}

// SelectRange returns the records whose current value in col lies in the
// inclusive range between begin and end, each read at version ver and
// projected like Select.
func (q *Query) SelectRange(begin, end int64, col int, ver Version, projected ...int) []Record {
	t := q.table
	cols := q.projection("select_range", projected)

	t.mu.RLock()
	defer t.mu.RUnlock()
	return q.records(t.index.locateRange(begin, end, col), ver, cols)
}

func (q *Query) projection(op string, projected []int) []int {
	n := q.table.NumColumns
	if len(projected) == 0 {
		cols := make([]int, n)
		for c := range cols {
			cols[c] = c
		}
		return cols
	}
	for _, c := range projected {
		checkColumn(op, c, n)
	}
	return projected
}

// records reads the key and the projected columns of every rid.
func (q *Query) records(rids []RID, ver Version, cols []int) []Record {
	t := q.table
	out := make([]Record, 0, len(rids))
	for _, rid := range rids {
		rec := t.records[rid]
		start, ok := t.resolve(rec, ver)
		if !ok {
			continue
		}
		row := make([]Value, len(cols))
		for n, c := range cols {
			row[n] = t.readColumn(rec, start, c)
		}
		out = append(out, Record{RID: rid, Key: t.readColumn(rec, start, t.Key), Columns: row})
	}
	return out
}

// Update sets col to new on every record whose current value in col is
// old and returns how many records changed.
func (q *Query) Update(col int, old, new Value) (int, error) {
	t := q.table
	checkColumn("update", col, t.NumColumns)

	t.mu.Lock()
	defer t.mu.Unlock()

	rids := t.index.locate(col, old)
	if len(rids) == 0 {
		return 0, errors.Wrapf(ErrRecordNotFound, "column %d = %s", col, old)
	}
	err := q.mutate(rids, func(RID, []Value) (map[int]Value, error) {
		return map[int]Value{col: new}, nil
	})
	if err != nil {
		return 0, err
	}
	return len(rids), nil
}

// UpdateKey applies changes to the record with the given primary key.
func (q *Query) UpdateKey(key Value, changes map[int]Value) error {
	t := q.table
	for col := range changes {
		checkColumn("update", col, t.NumColumns)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rids := t.index.locate(t.Key, key)
	if len(rids) == 0 {
		return errors.Wrapf(ErrRecordNotFound, "key %s", key)
	}
	return q.mutate(rids, func(RID, []Value) (map[int]Value, error) {
		return changes, nil
	})
}

// Increment adds one to col on every record whose current value in col
// is v and returns how many records changed.
func (q *Query) Increment(col int, v Value) (int, error) {
	t := q.table
	checkColumn("increment", col, t.NumColumns)

	t.mu.Lock()
	defer t.mu.Unlock()

	rids := t.index.locate(col, v)
	if len(rids) == 0 {
		return 0, errors.Wrapf(ErrRecordNotFound, "column %d = %s", col, v)
	}
	if err := q.mutate(rids, increment(col)); err != nil {
		return 0, err
	}
	return len(rids), nil
}

// IncrementKey adds one to col of the record with the given primary key.
func (q *Query) IncrementKey(key Value, col int) error {
	t := q.table
	checkColumn("increment", col, t.NumColumns)

	t.mu.Lock()
	defer t.mu.Unlock()

	rids := t.index.locate(t.Key, key)
	if len(rids) == 0 {
		return errors.Wrapf(ErrRecordNotFound, "key %s", key)
	}
	return q.mutate(rids, increment(col))
}

func increment(col int) func(RID, []Value) (map[int]Value, error) {
	return func(rid RID, cur []Value) (map[int]Value, error) {
		n, ok := cur[col].Int64()
		if !ok {
			return nil, errors.Wrapf(ErrNullIncrement, "rid %d column %d", rid, col)
		}
		if n == math.MaxInt64 {
			return nil, errors.Wrapf(ErrOverflow, "rid %d column %d", rid, col)
		}
		return map[int]Value{col: Int(n + 1)}, nil
	}
}

type mutation struct {
	rid     RID
	current []Value
	changes map[int]Value
}

// mutate plans the changes of every rid before touching anything, so a
// failed plan leaves both storage and index untouched.
func (q *Query) mutate(rids []RID, plan func(RID, []Value) (map[int]Value, error)) error {
	t := q.table

	muts := make([]mutation, 0, len(rids))
	for _, rid := range rids {
		rec, ok := t.lookup(rid)
		if !ok {
			return errors.Wrapf(ErrRecordNotFound, "rid %d", rid)
		}
		cur := t.readRow(rec, t.head(rec))
		changes, err := plan(rid, cur)
		if err != nil {
			return err
		}
		if key, ok := changes[t.Key]; ok && !key.Equal(cur[t.Key]) {
			if t.index.holds(t.Key, key) {
				return errors.Wrapf(ErrDuplicateKey, "key %s", key)
			}
		}
		muts = append(muts, mutation{rid: rid, current: cur, changes: changes})
	}

	for _, m := range muts {
		if err := t.update(m.rid, m.changes); err != nil {
			panic(errors.Wrap(err, "lstore: storage diverged from index"))
		}
		for col, v := range m.changes {
			if t.index.has(col) {
				t.index.updateIndex(col, m.rid, m.current[col], v)
			}
		}
	}
	return nil
}

// Delete removes every record whose current value in col equals v and
// returns how many were removed. Deleting again reports
// ErrRecordNotFound.
func (q *Query) Delete(col int, v Value) (int, error) {
	t := q.table
	checkColumn("delete", col, t.NumColumns)

	t.mu.Lock()
	defer t.mu.Unlock()

	rids := t.index.locate(col, v)
	if len(rids) == 0 {
		return 0, errors.Wrapf(ErrRecordNotFound, "column %d = %s", col, v)
	}

	rows := make([][]Value, len(rids))
	for n, rid := range rids {
		rec, ok := t.lookup(rid)
		if !ok {
			return 0, errors.Wrapf(ErrRecordNotFound, "rid %d", rid)
		}
		rows[n] = t.readRow(rec, t.head(rec))
	}

	indexed := t.index.indexed()
	for n, rid := range rids {
		if err := t.delete(rid); err != nil {
			panic(errors.Wrap(err, "lstore: storage diverged from index"))
		}
		for _, c := range indexed {
			t.index.dropEntry(c, rid, rows[n][c])
		}
	}
	return len(rids), nil
}

// Sum adds up col over the records whose key lies in the inclusive range
// between begin and end. Nulls add nothing; an empty range sums to zero.
func (q *Query) Sum(begin, end int64, col int) int64 {
	return q.SumVersion(begin, end, col, Latest)
}

// SumVersion is Sum reading every record at version ver.
func (q *Query) SumVersion(begin, end int64, col int, ver Version) int64 {
	t := q.table
	checkColumn("sum", col, t.NumColumns)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var total int64
	for _, rid := range t.index.locateRange(begin, end, t.Key) {
		rec := t.records[rid]
		start, ok := t.resolve(rec, ver)
		if !ok {
			continue
		}
		if n, ok := t.readColumn(rec, start, col).Int64(); ok {
			total += n
		}
	}
	return total
}
